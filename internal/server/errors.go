package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/logoforge/internal/auth"
	consumptiondomain "github.com/smallbiznis/logoforge/internal/consumption/domain"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/smallbiznis/logoforge/internal/storage"
	transactiondomain "github.com/smallbiznis/logoforge/internal/transaction/domain"
)

// Error codes returned in the body next to the HTTP status.
const (
	CodeInvalidRequest      = 10000
	CodeInvalidPrompt       = 10001
	CodeOutOfCredits        = 10002
	CodeUpstreamFailure     = 10003
	CodeAssetPersistence    = 10004
	CodeUnauthenticated     = 10010
	CodeInvalidSignature    = 10011
	CodeConflict            = 10019
	CodeRateLimited         = 10029
	CodeNotFound            = 10040
	CodeReconciliation      = 10041
	CodeInternal            = 10050
	CodeServiceUnavailable  = 10053
	CodeCheckoutUnavailable = 10054
)

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: CodeInternal}

	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Code: CodeUnauthenticated}

	case errors.Is(err, consumptiondomain.ErrInvalidPrompt):
		return http.StatusBadRequest, errorResponse{
			Error: "prompt must be 1 to 256 characters of letters, digits, spaces and , ; . !",
			Code:  CodeInvalidPrompt,
		}
	case errors.Is(err, entitlementdomain.ErrOutOfCredits):
		return http.StatusPaymentRequired, errorResponse{Error: "no generations left", Code: CodeOutOfCredits}
	case errors.Is(err, consumptiondomain.ErrUpstreamGenerationFailure):
		return http.StatusBadGateway, errorResponse{Error: "image generation failed", Code: CodeUpstreamFailure}
	case errors.Is(err, consumptiondomain.ErrAssetPersistenceFailure):
		return http.StatusInternalServerError, errorResponse{Error: "generated images could not be stored", Code: CodeAssetPersistence}

	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusForbidden, errorResponse{Error: "invalid signature", Code: CodeInvalidSignature}
	case errors.Is(err, paymentdomain.ErrReconciliation):
		return http.StatusInternalServerError, errorResponse{Error: "order could not be reconciled", Code: CodeReconciliation}
	case errors.Is(err, paymentdomain.ErrCheckoutUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "checkout unavailable", Code: CodeCheckoutUnavailable}
	case errors.Is(err, paymentdomain.ErrCheckoutFailed):
		return http.StatusBadGateway, errorResponse{Error: "checkout failed", Code: CodeUpstreamFailure}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "too many requests", Code: CodeRateLimited}
	case errors.Is(err, generationdomain.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{Error: "already exists", Code: CodeConflict}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: CodeNotFound}
	case isValidationError(err):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeInvalidRequest}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable", Code: CodeServiceUnavailable}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: CodeInternal}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, generationdomain.ErrNotFound),
		errors.Is(err, entitlementdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, generationdomain.ErrInvalidID),
		errors.Is(err, transactiondomain.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidVariant):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger with the mapped error type and code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return http.StatusText(status), strconv.Itoa(payload.Code)
}
