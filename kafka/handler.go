package kafka

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ETS-Next-Gen/writing-observer-sub002/guard"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/reducer"
)

// Dispatcher applies an event to the reducers registered for its context,
// or to those named in ids when ids is non-empty. *reducer.Dispatcher
// satisfies it.
type Dispatcher interface {
	DispatchTo(ctx context.Context, ev reducer.Event, ids []string) ([]reducer.Update, error)
}

// EventHandler returns a MessageHandler that decodes each message into a
// reducer event and dispatches it. Retryable dispatch failures, such as a
// briefly unreachable state store, are retried per retry; a retry only
// reaches the reducers that have not committed the event yet. Undecodable
// messages are logged and dropped.
func EventHandler(d Dispatcher, retry guard.RetryConfig, log *logger.Logger) MessageHandler {
	hlog := log.WithComponent("kafka.events")
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		hlog.Warn("Retrying dispatch", logger.Fields(
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		))
	}

	return func(ctx context.Context, msg Message) error {
		// Producers may carry a W3C traceparent header.
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
		ctx, span := observability.StartSpan(ctx, observability.SpanEventIngest)
		defer span.End()

		ev, err := DecodeEvent(msg)
		if err != nil {
			hlog.Warn("Dropping undecodable event", logger.Fields(
				"error", err.Error(),
				"topic", msg.Topic,
				"offset", msg.Offset,
			))
			return nil
		}

		var (
			pending []string
			updates []reducer.Update
		)
		_, err = guard.Retry(ctx, retry, func() (struct{}, error) {
			us, err := d.DispatchTo(ctx, ev, pending)
			updates = append(updates, us...)
			var de *reducer.DispatchError
			if errors.As(err, &de) {
				updates = append(updates, de.Committed...)
				pending = de.Pending
			}
			return struct{}{}, err
		})
		if err != nil {
			observability.SetSpanError(ctx, err)
			return err
		}
		observability.SetSpanAttribute(ctx, observability.AttrEventContext, ev.Context)
		hlog.Debug("Event dispatched", logger.Fields(
			"context", ev.Context,
			"updates", len(updates),
			"offset", msg.Offset,
		))
		return nil
	}
}
