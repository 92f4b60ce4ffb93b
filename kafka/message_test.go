package kafka

import (
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	apperrors "github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
)

func TestFromKafkaMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := FromKafkaMessage(kafkago.Message{
		Topic:     "events",
		Partition: 2,
		Offset:    41,
		Key:       []byte("s1"),
		Value:     []byte(`{}`),
		Time:      ts,
		Headers:   []kafkago.Header{{Key: ContextHeader, Value: []byte("org.example")}},
	})
	if msg.Key != "s1" || msg.Topic != "events" || msg.Partition != 2 || msg.Offset != 41 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if !msg.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, ts)
	}
	if msg.Headers[ContextHeader] != "org.example" {
		t.Errorf("Headers = %v", msg.Headers)
	}
}

func TestDecodeEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{
		Value:     []byte(`{"context":"org.mitros.writing_analytics","dimensions":{"student":"s1","CLASS":7},"payload":{"doc_id":1234567890123}}`),
		Timestamp: ts,
	}
	ev, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error: %v", err)
	}
	if ev.Context != "org.mitros.writing_analytics" {
		t.Errorf("Context = %q", ev.Context)
	}
	if ev.Dimensions[keys.Student] != "s1" || ev.Dimensions[keys.Class] != "7" {
		t.Errorf("Dimensions = %v", ev.Dimensions)
	}
	if n, ok := ev.Payload["doc_id"].(json.Number); !ok || n.String() != "1234567890123" {
		t.Errorf("doc_id = %#v, want exact json.Number", ev.Payload["doc_id"])
	}
	if !ev.Time.Equal(ts) {
		t.Errorf("Time = %v, want message timestamp %v", ev.Time, ts)
	}
}

func TestDecodeEvent_BodyTimeAndHeaderContext(t *testing.T) {
	msg := Message{
		Value:   []byte(`{"dimensions":{"STUDENT":"s2"},"time":"2026-01-02T03:04:05Z"}`),
		Headers: map[string]string{ContextHeader: "org.example"},
	}
	ev, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error: %v", err)
	}
	if ev.Context != "org.example" {
		t.Errorf("Context = %q, want header fallback", ev.Context)
	}
	if want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC); !ev.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", ev.Time, want)
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `not json`},
		{"array", `[1,2]`},
		{"no context", `{"dimensions":{"STUDENT":"s1"}}`},
		{"no dimensions", `{"context":"c"}`},
		{"empty dimensions", `{"context":"c","dimensions":{}}`},
		{"object dimension", `{"context":"c","dimensions":{"STUDENT":{"id":1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(Message{Value: []byte(tt.value)})
			if !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}
