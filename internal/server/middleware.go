package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/observability/logger"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// AuthRequired verifies the bearer token issued by the auth provider and
// binds the caller to the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, auth.ErrUnauthenticated)
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, auth.ErrUnauthenticated)
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Set(contextUserIDKey, identity.UserID)
		c.Next()
	}
}

// GenerationRateLimit throttles POST /api/generations per user. Redis errors
// let the request through.
func (s *Server) GenerationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.generationLimiter.Enabled() {
			c.Next()
			return
		}

		userID, err := auth.RequireUser(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}

		res, err := s.generationLimiter.Allow(c.Request.Context(), userID)
		if err == nil && !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			logger.FromContext(c.Request.Context()).Warn("generation rate limit exceeded",
				zap.Int("retry_after_seconds", retryAfter),
			)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
