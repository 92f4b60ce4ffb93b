package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// MeterConfig configures periodic metric export over OTLP/HTTP.
type MeterConfig struct {
	Target
	// Interval is the export period; zero keeps the SDK default.
	Interval time.Duration
}

// DefaultMeterConfig exports every 15s to a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{Target: DefaultTarget(serviceName), Interval: 15 * time.Second}
}

// InitMeter installs a periodically exporting meter provider as the
// global provider. The caller owns Shutdown.
func InitMeter(ctx context.Context, cfg *MeterConfig) (*sdkmetric.MeterProvider, error) {
	routeDiagnostics()
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("metric resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("Meter initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments for query execution and event dispatch.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	queryTotal       metric.Int64Counter
	queryDuration    metric.Float64Histogram
	queryActive      metric.Int64UpDownCounter
	nodeTotal        metric.Int64Counter
	nodeDuration     metric.Float64Histogram
	dispatchTotal    metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	errorTotal       metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	queryTotal, err := meter.Int64Counter("query.total",
		metric.WithDescription("Total number of query executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query.total counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram("query.duration",
		metric.WithDescription("Duration of query executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query.duration histogram: %w", err)
	}

	queryActive, err := meter.Int64UpDownCounter("query.active",
		metric.WithDescription("Number of queries currently executing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query.active gauge: %w", err)
	}

	nodeTotal, err := meter.Int64Counter("dag.node.total",
		metric.WithDescription("Total number of evaluated DAG nodes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dag.node.total counter: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram("dag.node.duration",
		metric.WithDescription("Duration of DAG node evaluation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dag.node.duration histogram: %w", err)
	}

	dispatchTotal, err := meter.Int64Counter("reducer.dispatch.total",
		metric.WithDescription("Total number of reducer applications"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reducer.dispatch.total counter: %w", err)
	}

	dispatchDuration, err := meter.Float64Histogram("reducer.dispatch.duration",
		metric.WithDescription("Duration of reducer applications in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reducer.dispatch.duration histogram: %w", err)
	}

	errorTotal, err := meter.Int64Counter("error.total",
		metric.WithDescription("Total errors by type and component"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating error.total counter: %w", err)
	}

	return &Metrics{
		queryTotal:       queryTotal,
		queryDuration:    queryDuration,
		queryActive:      queryActive,
		nodeTotal:        nodeTotal,
		nodeDuration:     nodeDuration,
		dispatchTotal:    dispatchTotal,
		dispatchDuration: dispatchDuration,
		errorTotal:       errorTotal,
	}, nil
}

// RecordQueryStart increments the active query count.
func (m *Metrics) RecordQueryStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.queryActive.Add(ctx, 1)
}

// RecordQueryEnd decrements active queries and records the completed query.
func (m *Metrics) RecordQueryEnd(ctx context.Context, document, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryActive.Add(ctx, -1)
	m.queryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("document", document),
		attribute.String("status", status),
	))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("document", document),
	))
}

// RecordNode records one node evaluation.
func (m *Metrics) RecordNode(ctx context.Context, nodeType, function, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_type", nodeType),
		attribute.String("function", function),
		attribute.String("status", status),
	))
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("node_type", nodeType),
		attribute.String("function", function),
	))
}

// RecordDispatch records one reducer application.
func (m *Metrics) RecordDispatch(ctx context.Context, eventContext, reducer, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("context", eventContext),
		attribute.String("reducer", reducer),
		attribute.String("status", status),
	))
	m.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("context", eventContext),
		attribute.String("reducer", reducer),
	))
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(ctx context.Context, errType, component string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", errType),
		attribute.String("component", component),
	))
}
