package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QueryRun tracks one query execution: its root span and its metrics.
type QueryRun struct {
	Document  string
	RequestID string

	start   time.Time
	span    trace.Span
	metrics *Metrics
}

// StartQuery opens the root span of a query and counts it as in flight.
// metrics may be nil.
func StartQuery(ctx context.Context, service, document, requestID string, metrics *Metrics) (context.Context, *QueryRun) {
	ctx, span := StartSpan(ctx, SpanQueryExecute, trace.WithAttributes(
		attribute.String(AttrServiceName, service),
		attribute.String(AttrDocument, document),
		attribute.String(AttrRequestID, requestID),
	))
	metrics.RecordQueryStart(ctx)
	return ctx, &QueryRun{
		Document:  document,
		RequestID: requestID,
		start:     time.Now(),
		span:      span,
		metrics:   metrics,
	}
}

// End closes the span with status ("success", "partial" or "error") and
// records the query duration, which it returns.
func (q *QueryRun) End(ctx context.Context, status string, err error) time.Duration {
	elapsed := time.Since(q.start)
	if err != nil {
		q.span.RecordError(err)
		q.span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	q.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, elapsed.Milliseconds()),
	)
	q.span.End()
	q.metrics.RecordQueryEnd(ctx, q.Document, status, elapsed)
	return elapsed
}
