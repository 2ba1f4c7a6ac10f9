package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/logoforge/internal/config"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"github.com/smallbiznis/logoforge/internal/payment/adapters"
	"github.com/smallbiznis/logoforge/internal/payment/adapters/lemonsqueezy"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Credits    *config.CreditsConfigHolder
	Adapters   *adapters.Registry
	Processor  paymentdomain.EventProcessor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	secrets    map[string]string
	credits    *config.CreditsConfigHolder
	adapters   *adapters.Registry
	processor  paymentdomain.EventProcessor
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log: p.Log.Named("payment.webhook"),
		secrets: map[string]string{
			lemonsqueezy.Provider: strings.TrimSpace(p.Cfg.LemonSqueezy.WebhookSecret),
		},
		credits:    p.Credits,
		adapters:   p.Adapters,
		processor:  p.Processor,
		obsMetrics: p.ObsMetrics,
	}
}

// HandleWebhook verifies the signature before reading anything from the
// payload. Deliveries that fail verification never reach the processor.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", paymentdomain.ErrInvalidProvider
	}

	adapter, err := s.adapters.Adapter(provider, paymentdomain.AdapterConfig{
		Provider:         provider,
		WebhookSecret:    s.secrets[provider],
		HighResProductID: s.credits.Get().HighResProductID,
	})
	if err != nil {
		if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
			s.log.Error("payment webhook adapter unavailable", zap.String("provider", provider), zap.Error(err))
		}
		return "", err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			s.log.Warn("payment webhook signature rejected", zap.String("provider", provider))
			s.obsMetrics.RecordPaymentEvent(ctx, provider, "unknown", "rejected")
		}
		return "", err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Info("unhandled payment webhook event", zap.String("provider", provider))
			s.obsMetrics.RecordPaymentEvent(ctx, provider, "unknown", string(paymentdomain.OutcomeIgnored))
			return paymentdomain.OutcomeIgnored, nil
		}
		s.log.Warn("payment webhook payload rejected", zap.String("provider", provider), zap.Error(err))
		return "", err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.processor.ProcessEvent(ctx, event)
}
