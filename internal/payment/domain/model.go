package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the processed-event marker for one provider delivery.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventName       string         `json:"event_name" gorm:"type:text;not null"`
	UserID          string         `json:"user_id" gorm:"type:text;not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventOrderCreated  = "order_created"
	EventOrderRefunded = "order_refunded"
	EventOrderFailed   = "order_failed"
)

type OrderKind string

const (
	OrderKindHighResImage   OrderKind = "high_res_image"
	OrderKindGenerationPlan OrderKind = "generation_plan"
)

// OrderEvent is the provider-neutral order notification produced by adapters.
// GenerationID is set only for high-res orders.
type OrderEvent struct {
	Provider        string
	ProviderEventID string
	EventName       string
	OrderID         string
	Kind            OrderKind
	UserID          string
	GenerationID    snowflake.ID
	ProductID       string
	AmountCents     int64
	RawPayload      []byte
}

// Outcome describes how an accepted delivery was handled.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeReplayed Outcome = "replayed"
	OutcomeNoop     Outcome = "noop"
	OutcomeIgnored  Outcome = "ignored"
)

type AdapterConfig struct {
	Provider         string
	WebhookSecret    string
	HighResProductID string
}

type CheckoutRequest struct {
	UserID       string
	Email        string
	VariantID    string
	GenerationID string
}

type CheckoutResult struct {
	CheckoutURL string `json:"checkout_url"`
}
