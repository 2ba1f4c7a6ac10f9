package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/logoforge/internal/auth"
	consumptiondomain "github.com/smallbiznis/logoforge/internal/consumption/domain"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/smallbiznis/logoforge/internal/storage"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"unauthenticated", auth.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
		{"invalid prompt", consumptiondomain.ErrInvalidPrompt, http.StatusBadRequest, CodeInvalidPrompt},
		{"out of credits", entitlementdomain.ErrOutOfCredits, http.StatusPaymentRequired, CodeOutOfCredits},
		{"wrapped upstream", fmt.Errorf("%w: timeout", consumptiondomain.ErrUpstreamGenerationFailure), http.StatusBadGateway, CodeUpstreamFailure},
		{"asset persistence", consumptiondomain.ErrAssetPersistenceFailure, http.StatusInternalServerError, CodeAssetPersistence},
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusForbidden, CodeInvalidSignature},
		{"reconciliation", paymentdomain.ErrReconciliation, http.StatusInternalServerError, CodeReconciliation},
		{"invalid payload", paymentdomain.ErrInvalidPayload, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown provider", paymentdomain.ErrProviderNotFound, http.StatusNotFound, CodeNotFound},
		{"generation not found", generationdomain.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"duplicate generation", generationdomain.ErrAlreadyExists, http.StatusConflict, CodeConflict},
		{"storage off", storage.ErrNotConfigured, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"checkout off", paymentdomain.ErrCheckoutUnavailable, http.StatusServiceUnavailable, CodeCheckoutUnavailable},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.status || payload.Code != tc.code {
				t.Fatalf("expected %d/%d, got %d/%d", tc.status, tc.code, status, payload.Code)
			}
		})
	}
}

func TestInternalErrorsDoNotLeakDetail(t *testing.T) {
	_, payload := mapError(errors.New("pq: relation \"secret_table\" does not exist"))
	if payload.Error != "internal error" {
		t.Fatalf("expected generic message, got %q", payload.Error)
	}
}
