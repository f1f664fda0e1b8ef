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
	webhooks      metric.Int64Counter
	transitions   metric.Int64Counter
	cascadeJobs   metric.Int64Counter
	paymentLinks  metric.Int64Counter
	retryRequests metric.Int64Counter
	reversals     metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "marketpay"
	}
	meter := provider.Meter(name)

	webhooks, err := meter.Int64Counter("marketpay_webhook_notifications_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("marketpay_state_transitions_total")
	if err != nil {
		return nil, err
	}
	cascadeJobs, err := meter.Int64Counter("marketpay_cascade_jobs_total")
	if err != nil {
		return nil, err
	}
	paymentLinks, err := meter.Int64Counter("marketpay_payment_links_total")
	if err != nil {
		return nil, err
	}
	retryRequests, err := meter.Int64Counter("marketpay_retry_requests_total")
	if err != nil {
		return nil, err
	}
	reversals, err := meter.Int64Counter("marketpay_payment_reversals_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhooks:      webhooks,
		transitions:   transitions,
		cascadeJobs:   cascadeJobs,
		paymentLinks:  paymentLinks,
		retryRequests: retryRequests,
		reversals:     reversals,
	}, nil
}

// RecordWebhook counts processed gateway notifications by outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, provider, outcome, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.webhooks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransition counts committed state transitions.
func (m *Metrics) RecordTransition(ctx context.Context, kind, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCascadeJob counts finished cascade jobs by effect and final status.
func (m *Metrics) RecordCascadeJob(ctx context.Context, effect, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("effect", effect),
		attribute.String("status", status),
	)
	m.cascadeJobs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentLink counts payment links minted at the gateway.
func (m *Metrics) RecordPaymentLink(ctx context.Context, kind, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("source", source),
	)
	m.paymentLinks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRetry counts retry requests by result.
func (m *Metrics) RecordRetry(ctx context.Context, kind, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	)
	m.retryRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReversal counts refunds and chargebacks seen after activation.
func (m *Metrics) RecordReversal(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.reversals.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"provider":    {},
	"outcome":     {},
	"reason":      {},
	"kind":        {},
	"from_state":  {},
	"to_state":    {},
	"effect":      {},
	"status":      {},
	"source":      {},
	"result":      {},
	"status_code": {},
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
