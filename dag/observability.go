package dag

import (
	"context"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
)

// Middleware decorates a registered function. name is the function
// identity it is registered under.
type Middleware func(name string, fn Func) Func

// WithTracing wraps each call in a span named "dag.call.{name}".
func WithTracing() Middleware {
	return func(name string, fn Func) Func {
		return func(ctx context.Context, args Args) (any, error) {
			ctx, span := observability.StartSpan(ctx, "dag.call."+name)
			defer span.End()

			observability.SetSpanAttribute(ctx, observability.AttrFunction, name)

			out, err := fn(ctx, args)
			if err != nil {
				observability.SetSpanError(ctx, err)
			}
			return out, err
		}
	}
}

// WithCallMetrics records call count, duration and errors. Lazy results
// are counted when the call returns, not when they are drained.
func WithCallMetrics(metrics *observability.Metrics) Middleware {
	return func(name string, fn Func) Func {
		return func(ctx context.Context, args Args) (any, error) {
			start := time.Now()
			out, err := fn(ctx, args)

			status := "ok"
			if err != nil {
				status = "error"
				metrics.RecordError(ctx, "call", name)
			}
			metrics.RecordNode(ctx, "function", name, status, time.Since(start))
			return out, err
		}
	}
}

// WithCallLogging logs each call with its duration and outcome.
func WithCallLogging(log *logger.Logger) Middleware {
	return func(name string, fn Func) Func {
		return func(ctx context.Context, args Args) (any, error) {
			start := time.Now()
			out, err := fn(ctx, args)

			fields := logger.Fields(logger.FieldFunction, name, logger.FieldDuration, time.Since(start).Milliseconds())
			if err != nil {
				fields[logger.FieldError] = err.Error()
				log.WithContext(ctx).Error("function call failed", fields)
			} else {
				log.WithContext(ctx).Debug("function call completed", fields)
			}
			return out, err
		}
	}
}
