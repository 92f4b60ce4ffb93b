// Package observability provides OpenTelemetry tracing and metrics for
// query execution and event dispatch.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("observer")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanDAGNode)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("observer"))
//	metrics.RecordNode(ctx, "call", "course_roster", "ok", duration)
//
// A nil *Metrics records nothing, so components take one optionally.
package observability
