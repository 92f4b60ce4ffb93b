package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
	"github.com/ETS-Next-Gen/writing-observer-sub002/reducer"
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// ContextHeader carries the event context when the body omits it.
const ContextHeader = "event-context"

// Message is a transport-neutral view of a consumed Kafka message.
type Message struct {
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// FromKafkaMessage converts a kafka-go Message to a Message.
func FromKafkaMessage(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
	}
}

// envelope is the JSON body of an activity event.
type envelope struct {
	Context    string         `json:"context" validate:"required"`
	Dimensions map[string]any `json:"dimensions" validate:"required,min=1"`
	Payload    map[string]any `json:"payload"`
	Time       *time.Time     `json:"time"`
}

// DecodeEvent parses msg into a reducer event. Dimension names are
// upper-cased and scalar values rendered as strings. Payload numbers stay
// json.Number so ids and counters keep their exact text.
func DecodeEvent(msg Message) (reducer.Event, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return reducer.Event{}, apperrors.InvalidInput("value", "event is not a JSON object").WithCause(err)
	}
	if env.Context == "" {
		env.Context = msg.Headers[ContextHeader]
	}
	if err := validation.Struct(env); err != nil {
		return reducer.Event{}, apperrors.InvalidInput("value", strings.Join(validation.Messages(err), "; ")).WithCause(err)
	}

	dims := make(keys.Dimensions, len(env.Dimensions))
	for name, v := range env.Dimensions {
		switch v.(type) {
		case map[string]any, []any:
			return reducer.Event{}, apperrors.InvalidInput("dimensions."+name, "dimension values must be scalars")
		case nil:
			continue
		}
		dims[keys.Field(strings.ToUpper(name))] = fmt.Sprint(v)
	}

	ev := reducer.Event{
		Context:    env.Context,
		Dimensions: dims,
		Payload:    env.Payload,
		Time:       msg.Timestamp,
	}
	if env.Time != nil {
		ev.Time = *env.Time
	}
	return ev, nil
}
