package lemonsqueezy

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
)

const (
	Provider        = "lemonsqueezy"
	SignatureHeader = "X-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{
		webhookSecret:    secret,
		highResProductID: strings.TrimSpace(cfg.HighResProductID),
	}, nil
}

type Adapter struct {
	webhookSecret    string
	highResProductID string
}

// Verify checks the hex HMAC-SHA256 of the raw body against the X-Signature header.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex signature LemonSqueezy sends for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Parse classifies an order webhook. order_created deliveries must carry the
// fields their dispatch needs; anything else is rejected before it reaches
// the ledgers.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.OrderEvent, error) {
	var event webhookEvent
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	eventName := strings.TrimSpace(event.Meta.EventName)
	switch eventName {
	case paymentdomain.EventOrderCreated, paymentdomain.EventOrderRefunded, paymentdomain.EventOrderFailed:
	case "":
		return nil, paymentdomain.ErrInvalidPayload
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	orderID := strings.TrimSpace(event.Data.ID.String())
	if orderID == "" && eventName == paymentdomain.EventOrderCreated {
		return nil, paymentdomain.ErrInvalidPayload
	}

	productID := event.Data.Attributes.FirstOrderItem.ProductID.String()
	kind := paymentdomain.OrderKindGenerationPlan
	if a.highResProductID != "" && productID == a.highResProductID {
		kind = paymentdomain.OrderKindHighResImage
	}

	eventID := eventName
	if orderID != "" {
		eventID = fmt.Sprintf("%s:%s", eventName, orderID)
	}
	out := &paymentdomain.OrderEvent{
		Provider:        Provider,
		ProviderEventID: eventID,
		EventName:       eventName,
		OrderID:         orderID,
		Kind:            kind,
		UserID:          strings.TrimSpace(event.Meta.CustomData.UserID.String()),
		ProductID:       productID,
		RawPayload:      payload,
	}

	if eventName != paymentdomain.EventOrderCreated {
		return out, nil
	}

	if out.UserID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	amount, err := event.Data.Attributes.amountCents()
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	out.AmountCents = amount

	if kind == paymentdomain.OrderKindHighResImage {
		generationID, err := snowflake.ParseString(strings.TrimSpace(event.Meta.CustomData.GenerationID.String()))
		if err != nil || generationID <= 0 {
			return nil, paymentdomain.ErrInvalidPayload
		}
		out.GenerationID = generationID
	}

	return out, nil
}

// maxAmountCents bounds float totals to values float64 holds exactly.
const maxAmountCents = 1 << 53

type webhookEvent struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID       flexString `json:"user_id"`
			GenerationID flexString `json:"generation_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         flexString      `json:"id"`
		Attributes orderAttributes `json:"attributes"`
	} `json:"data"`
}

type orderAttributes struct {
	TotalUSD       *json.Number `json:"total_usd"`
	Total          *json.Number `json:"total"`
	FirstOrderItem struct {
		ProductID flexString `json:"product_id"`
	} `json:"first_order_item"`
}

// amountCents prefers total_usd and falls back to total. Both are integer
// cents; fractional values are rejected, "499.0" is accepted.
func (o orderAttributes) amountCents() (int64, error) {
	raw := o.TotalUSD
	if raw == nil {
		raw = o.Total
	}
	if raw == nil {
		return 0, paymentdomain.ErrInvalidPayload
	}
	value, err := raw.Int64()
	if err != nil {
		parsed, ferr := strconv.ParseFloat(raw.String(), 64)
		if ferr != nil || parsed != math.Trunc(parsed) || math.Abs(parsed) > maxAmountCents {
			return 0, paymentdomain.ErrInvalidPayload
		}
		value = int64(parsed)
	}
	if value < 0 {
		return 0, paymentdomain.ErrInvalidPayload
	}
	return value, nil
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return string(f) }
