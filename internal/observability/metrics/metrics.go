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
	generations     metric.Int64Counter
	settlements     metric.Int64Counter
	deposits        metric.Int64Counter
	reconciliations metric.Int64Counter
	tokensBilled    metric.Int64Counter
	providerLatency metric.Float64Histogram
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
		name = "tollgate"
	}
	meter := provider.Meter(name)

	generations, err := meter.Int64Counter("tollgate_generations_total",
		metric.WithDescription("Generation requests by terminal state."))
	if err != nil {
		return nil, err
	}
	settlements, err := meter.Int64Counter("tollgate_settlements_total",
		metric.WithDescription("Wallet settlements by outcome."))
	if err != nil {
		return nil, err
	}
	deposits, err := meter.Int64Counter("tollgate_deposits_total",
		metric.WithDescription("Wallet credits by outcome."))
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("tollgate_reconciliation_required_total",
		metric.WithDescription("Provider calls that completed but could not be charged."))
	if err != nil {
		return nil, err
	}
	tokensBilled, err := meter.Int64Counter("tollgate_tokens_billed_total",
		metric.WithDescription("Tokens charged to wallets."))
	if err != nil {
		return nil, err
	}
	providerLatency, err := meter.Float64Histogram("tollgate_provider_duration_seconds",
		metric.WithDescription("Latency of upstream generation calls."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		generations:     generations,
		settlements:     settlements,
		deposits:        deposits,
		reconciliations: reconciliations,
		tokensBilled:    tokensBilled,
		providerLatency: providerLatency,
	}, nil
}

// RecordGeneration counts a generation request by its terminal state and reason.
func (m *Metrics) RecordGeneration(ctx context.Context, state, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("state", strings.TrimSpace(state)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.generations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlement counts a settlement attempt and, on success, the tokens it charged.
func (m *Metrics) RecordSettlement(ctx context.Context, outcome string, totalTokens int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.settlements.Add(ctx, 1, metric.WithAttributes(attrs...))
	if totalTokens > 0 {
		m.tokensBilled.Add(ctx, totalTokens)
	}
}

// RecordDeposit counts a wallet credit attempt.
func (m *Metrics) RecordDeposit(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.deposits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts an unbilled provider call.
func (m *Metrics) RecordReconciliation(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveProviderLatency records how long the upstream call took.
func (m *Metrics) ObserveProviderLatency(ctx context.Context, provider string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", outcome),
	)
	m.providerLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
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
	"state":       {},
	"reason":      {},
	"outcome":     {},
	"provider":    {},
	"endpoint":    {},
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
