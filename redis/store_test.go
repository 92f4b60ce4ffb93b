package redis

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// newTestStore creates a Store on a miniredis server.
func newTestStore(t *testing.T, mutate func(*Config)) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)

	cfg := Config{Enabled: true, Addr: mini.Addr()}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.ApplyDefaults()

	rdb := goredis.NewClient(cfg.options())
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, cfg), mini
}

func TestStore_SetAndGet(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "internal,event_count,STUDENT:s1", map[string]any{"count": 3}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "internal,event_count,STUDENT:s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	want := map[string]any{"count": float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t, nil)
	got, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || got != nil {
		t.Errorf("expected absent, got %v (ok=%v)", got, ok)
	}
}

func TestStore_GetCorrupt(t *testing.T) {
	store, mini := newTestStore(t, nil)
	mini.Set("bad", "{not json")
	if _, _, err := store.Get(context.Background(), "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	store, mini := newTestStore(t, func(c *Config) { c.KeyPrefix = "wo" })
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mini.Exists("wo:k1") {
		t.Error("expected prefixed key in redis")
	}
	keys, err := store.Keys(ctx, "k*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("expected [k1], got %v", keys)
	}
}

func TestStore_Keys(t *testing.T) {
	store, _ := newTestStore(t, func(c *Config) { c.ScanCount = 1 })
	ctx := context.Background()
	for _, k := range []string{
		"external,event_count,STUDENT:b",
		"external,event_count,STUDENT:a",
		"internal,event_count,STUDENT:a",
	} {
		if err := store.Set(ctx, k, 1); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	got, err := store.Keys(ctx, "external,event_count,*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"external,event_count,STUDENT:a", "external,event_count,STUDENT:b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStore_MultiGet(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()
	_ = store.Set(ctx, "a", map[string]any{"count": 1})
	_ = store.Set(ctx, "c", "text")

	got, err := store.MultiGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MultiGet failed: %v", err)
	}
	want := []any{map[string]any{"count": float64(1)}, nil, "text"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	empty, err := store.MultiGet(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty MultiGet: %v, %v", empty, err)
	}
}

func TestStore_StateTTL(t *testing.T) {
	store, mini := newTestStore(t, func(c *Config) { c.StateTTL = time.Hour })
	if err := store.Set(context.Background(), "k1", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mini.TTL("k1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}
}

func TestStore_Unavailable(t *testing.T) {
	store, mini := newTestStore(t, nil)
	mini.Close()

	if err := store.Set(context.Background(), "k1", 1); err == nil {
		t.Fatal("expected error when redis is down")
	}
	if _, _, err := store.Get(context.Background(), "k1"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled skips", Config{}, false},
		{"missing addr", Config{Enabled: true}, true},
		{"sub-second ttl", Config{Enabled: true, Addr: "x:1", StateTTL: time.Millisecond}, true},
		{"idle above size", Config{Enabled: true, Addr: "x:1", Pool: PoolConfig{Size: 2, MinIdle: 5}}, true},
		{"ok", Config{Enabled: true, Addr: "x:1", StateTTL: 24 * time.Hour}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mini.Close()

	comp := NewComponent(Config{Enabled: true, Addr: mini.Addr()}, logger.Nop())
	if comp.Store() != nil {
		t.Fatal("store should be nil before Start")
	}
	ctx := context.Background()
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if comp.Store() == nil {
		t.Fatal("store should be set after Start")
	}
	if h := comp.Health(ctx); h.Status != component.StatusHealthy || !strings.HasPrefix(h.Message, "pool total=") {
		t.Errorf("health = %+v", h)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if comp.Store() != nil {
		t.Error("store should be released after Stop")
	}
	if h := comp.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health after Stop = %+v", h)
	}
}

func TestComponent_StartFailures(t *testing.T) {
	ctx := context.Background()
	if err := NewComponent(Config{Addr: "localhost:1"}, logger.Nop()).Start(ctx); err == nil {
		t.Error("disabled redis should not start")
	}

	mini := miniredis.RunT(t)
	addr := mini.Addr()
	mini.Close()
	comp := NewComponent(Config{Enabled: true, Addr: addr}, logger.Nop())
	if err := comp.Start(ctx); err == nil {
		t.Fatal("expected ping failure against a stopped server")
	}
	if comp.Store() != nil {
		t.Error("store should stay nil after a failed Start")
	}
}
