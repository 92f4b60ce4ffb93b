package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// instrumentationName names the tracer every observer span comes from.
const instrumentationName = "github.com/ETS-Next-Gen/writing-observer-sub002"

// TracerConfig configures span export over OTLP/HTTP.
type TracerConfig struct {
	Target
	// SampleRate is the fraction of root traces kept. Child spans follow
	// their parent's decision.
	SampleRate float64
}

// DefaultTracerConfig exports every trace to a local collector.
func DefaultTracerConfig(serviceName string) TracerConfig {
	return TracerConfig{Target: DefaultTarget(serviceName), SampleRate: 1.0}
}

// InitTracer installs a batching tracer provider as the global provider
// along with W3C trace-context propagation. The caller owns Shutdown.
func InitTracer(ctx context.Context, cfg *TracerConfig) (*sdktrace.TracerProvider, error) {
	routeDiagnostics()
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracer initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	))
	return tp, nil
}

// sampler samples root spans at rate and defers to the parent otherwise,
// so a query's node spans are kept or dropped together.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// StartSpan starts a span from the observer's tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// SetSpanAttribute annotates the span in ctx. Values of unsupported types
// are dropped.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if kv, ok := keyValue(key, value); ok {
		span.SetAttributes(kv)
	}
}

func keyValue(key string, value any) (attribute.KeyValue, bool) {
	k := attribute.Key(key)
	switch v := value.(type) {
	case string:
		return k.String(v), true
	case int:
		return k.Int(v), true
	case int64:
		return k.Int64(v), true
	case float64:
		return k.Float64(v), true
	case bool:
		return k.Bool(v), true
	case []string:
		return k.StringSlice(v), true
	case fmt.Stringer:
		return k.String(v.String()), true
	}
	return attribute.KeyValue{}, false
}

// SetSpanError records err on the span in ctx and marks it failed.
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span names.
const (
	SpanQueryExecute = "query.execute"
	SpanDAGNode      = "dag.node"
	SpanDispatch     = "reducer.dispatch"
	SpanReducerApply = "reducer.apply"
	SpanEventIngest  = "event.ingest"
	SpanGuardedCall  = "guard.call"
)

// Attribute keys.
const (
	AttrServiceName   = "service.name"
	AttrOperationName = "operation.name"
	AttrRequestID     = "request.id"
	AttrDocument      = "query.document"
	AttrNode          = "dag.node"
	AttrNodeType      = "dag.node_type"
	AttrFunction      = "dag.function"
	AttrEventContext  = "event.context"
	AttrReducer       = "reducer.id"
	AttrStateKey      = "state.key"
	AttrDurationMs    = "duration_ms"
	AttrStatus        = "status"
	AttrErrorMessage  = "error.message"
)
