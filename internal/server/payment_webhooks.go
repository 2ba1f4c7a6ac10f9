package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/logoforge/internal/payment/adapters/lemonsqueezy"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook answers 200 for every delivery that is applied,
// replayed or deliberately ignored so the provider stops retrying. Failures
// answer 5xx and are retried by the provider.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.webhookSvc.HandleWebhook(c.Request.Context(), lemonsqueezy.Provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": outcome})
}
