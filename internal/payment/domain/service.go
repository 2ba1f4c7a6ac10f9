package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*OrderEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// CheckoutClient creates hosted checkout sessions at the provider.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (bool, error)
}

// WebhookService verifies, classifies and applies a raw provider delivery.
type WebhookService interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (Outcome, error)
}

// EventProcessor applies a verified, classified order event at most once.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *OrderEvent) (Outcome, error)
}

type CheckoutService interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrReconciliation        = errors.New("reconciliation_error")
	ErrCheckoutUnavailable   = errors.New("checkout_unavailable")
	ErrInvalidVariant        = errors.New("invalid_variant")
	ErrCheckoutFailed        = errors.New("checkout_failed")
)
