package kafka

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// mockRunner implements Runner for testing
type mockRunner struct {
	topic      string
	consumed   atomic.Bool
	closeCalls atomic.Int32
	closeErr   error
}

func (m *mockRunner) Consume(ctx context.Context) error {
	m.consumed.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockRunner) Close() error {
	m.closeCalls.Add(1)
	return m.closeErr
}

func (m *mockRunner) Topic() string { return m.topic }

func (m *mockRunner) Stats() Stats { return Stats{Topic: m.topic, Messages: 4} }

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error"}, "test")
}

func TestComponent_Name(t *testing.T) {
	comp := NewComponent(Config{}, testLogger())
	if comp.Name() != "kafka" {
		t.Errorf("Name() = %q, want kafka", comp.Name())
	}
}

func TestComponent_Describe(t *testing.T) {
	comp := NewComponent(Config{Brokers: []string{"b1:9092", "b2:9092"}, GroupID: "observer"}, testLogger())
	comp.Add(&mockRunner{topic: "events"})
	comp.Add(&mockRunner{topic: "updates"})

	desc := comp.Describe()
	if desc.Name != "Kafka" || desc.Type != "kafka" {
		t.Errorf("Describe() = %+v", desc)
	}
	for _, want := range []string{"b1:9092", "group=observer", "events", "updates"} {
		if !strings.Contains(desc.Details, want) {
			t.Errorf("Details %q missing %q", desc.Details, want)
		}
	}
}

func TestComponent_StartStop(t *testing.T) {
	comp := NewComponent(Config{}, testLogger())
	events := &mockRunner{topic: "events"}
	updates := &mockRunner{topic: "updates"}
	comp.Add(events)
	comp.Add(updates)

	ctx, cancel := context.WithCancel(context.Background())
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	// double start should be no-op
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("double Start() error: %v", err)
	}
	// canceling the start context must not stop the runners
	cancel()

	if err := comp.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	for _, r := range []*mockRunner{events, updates} {
		if !r.consumed.Load() {
			t.Errorf("%s runner should have run", r.topic)
		}
		if r.closeCalls.Load() != 1 {
			t.Errorf("%s Close() called %d times, want 1", r.topic, r.closeCalls.Load())
		}
	}
}

func TestComponent_StopReportsCloseErrors(t *testing.T) {
	comp := NewComponent(Config{}, testLogger())
	comp.Add(&mockRunner{topic: "events", closeErr: errors.New("boom")})

	if err := comp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	err := comp.Stop(context.Background())
	if err == nil || !strings.Contains(err.Error(), "close events") {
		t.Fatalf("Stop() error = %v, want close events failure", err)
	}
}

func TestComponent_StopNotRunning(t *testing.T) {
	comp := NewComponent(Config{}, testLogger())
	if err := comp.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on not-running component should not error: %v", err)
	}
}

func TestComponent_Health(t *testing.T) {
	comp := NewComponent(Config{Brokers: []string{"b1:9092"}}, testLogger())
	if h := comp.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("before Start: Status = %q, want unhealthy", h.Status)
	}

	if err := comp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer comp.Stop(context.Background())

	comp.Add(&mockRunner{topic: "events"})
	comp.dial = func(context.Context, Config) error { return nil }
	if h := comp.Health(context.Background()); h.Status != component.StatusHealthy || h.Message != "events: 4 msgs" {
		t.Errorf("reachable: Health() = %+v, want healthy with traffic", h)
	}

	comp.dial = func(context.Context, Config) error { return errors.New("broker unreachable") }
	h := comp.Health(context.Background())
	if h.Status != component.StatusDegraded || h.Message != "broker unreachable" {
		t.Errorf("unreachable: Health() = %+v", h)
	}
}
