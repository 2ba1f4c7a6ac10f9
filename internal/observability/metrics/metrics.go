package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	generationsConsumed metric.Int64Counter
	generationsDenied   metric.Int64Counter
	paymentEvents       metric.Int64Counter
	transactions        metric.Int64Counter
	creditGrants        metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the ledger counters on the otel meter. Exported names keep
// the logoforge_ prefix so they line up with the prometheus scheduler series.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "logoforge"
	}
	meter := provider.Meter(name)

	var firstErr error
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter("logoforge_"+name, metric.WithDescription(description))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("counter %s: %w", name, err)
		}
		return c
	}

	m := &Metrics{
		generationsConsumed: counter("generations_consumed_total", "Generations debited, by credit kind."),
		generationsDenied:   counter("generations_denied_total", "Generation requests rejected, by reason."),
		paymentEvents:       counter("payment_events_total", "Payment webhook deliveries, by outcome."),
		transactions:        counter("transactions_total", "Purchase transactions recorded."),
		creditGrants:        counter("credit_grants_total", "Generation packs granted, by grant mode."),
		rateLimitAllowed:    counter("rate_limit_allowed_total", "Requests admitted by the rate limiter."),
		rateLimitDenied:     counter("rate_limit_denied_total", "Requests rejected by the rate limiter."),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

// RecordGenerationConsumed counts a granted debit by credit kind (free or purchased).
func (m *Metrics) RecordGenerationConsumed(ctx context.Context, creditKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("credit_kind", strings.TrimSpace(creditKind)))
	m.generationsConsumed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGenerationDenied counts rejected generation requests.
func (m *Metrics) RecordGenerationDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.generationsDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransaction increments transaction log writes.
func (m *Metrics) RecordTransaction(ctx context.Context, transactionType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("transaction_type", strings.TrimSpace(transactionType)))
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditGrant increments purchased pack grants.
func (m *Metrics) RecordCreditGrant(ctx context.Context, grantMode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("grant_mode", strings.TrimSpace(grantMode)))
	m.creditGrants.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":         {},
	"status_code":      {},
	"credit_kind":      {},
	"provider":         {},
	"event_type":       {},
	"outcome":          {},
	"transaction_type": {},
	"grant_mode":       {},
	"reason":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
