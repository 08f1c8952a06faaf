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
	limitChecks     metric.Int64Counter
	limitDenied     metric.Int64Counter
	coverageLookups metric.Int64Counter
	signups         metric.Int64Counter
	rateLimitDenied metric.Int64Counter
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
		name = "warrantyhub"
	}
	meter := provider.Meter(name)

	limitChecks, err := meter.Int64Counter("warrantyhub_limit_checks_total")
	if err != nil {
		return nil, err
	}
	limitDenied, err := meter.Int64Counter("warrantyhub_limit_denied_total")
	if err != nil {
		return nil, err
	}
	coverageLookups, err := meter.Int64Counter("warrantyhub_coverage_lookups_total")
	if err != nil {
		return nil, err
	}
	signups, err := meter.Int64Counter("warrantyhub_signups_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("warrantyhub_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		limitChecks:     limitChecks,
		limitDenied:     limitDenied,
		coverageLookups: coverageLookups,
		signups:         signups,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// NewNoop returns instruments backed by the noop provider, used in tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordLimitCheck counts a quota check and whether it was denied.
func (m *Metrics) RecordLimitCheck(ctx context.Context, kind string, allowed bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("limit_kind", strings.TrimSpace(kind)))
	m.limitChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
	if !allowed {
		m.limitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordCoverageLookup counts coverage verdicts by winning source.
func (m *Metrics) RecordCoverageLookup(ctx context.Context, verdict, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("verdict", strings.TrimSpace(verdict)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.coverageLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSignup counts organization signups by outcome.
func (m *Metrics) RecordSignup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(outcome)))
	m.signups.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"limit_kind":  {},
	"verdict":     {},
	"source":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
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
