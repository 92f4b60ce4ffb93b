package reducer

import (
	"context"
	"encoding/json"

	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
)

// EventCountID is the function identity of the event counter.
const EventCountID = "event_count"

// EventCounter counts the events of eventContext per student. Internal and
// external state are both {"count": n}.
func EventCounter(eventContext string) Reducer {
	return Reducer{
		ID:      EventCountID,
		Context: eventContext,
		Scope:   keys.NewScope(keys.Student),
		Default: map[string]any{"count": 0},
		Reduce: func(_ context.Context, _ Event, internal any) (any, any, error) {
			state, _ := internal.(map[string]any)
			next := map[string]any{"count": asInt(state["count"]) + 1}
			return next, next, nil
		},
	}
}

// asInt reads a counter that may have been decoded from JSON.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
