package guard

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// --- test helpers ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingFunc(calls *atomic.Int32) dag.Func {
	return func(_ context.Context, args dag.Args) (any, error) {
		calls.Add(1)
		return fmt.Sprintf("roster:%v", args["course_id"]), nil
	}
}

type unavailableCache struct{}

func (unavailableCache) Get(context.Context, string) (any, bool, error) {
	return nil, false, fmt.Errorf("connection refused")
}

func (unavailableCache) Set(context.Context, string, any) error {
	return fmt.Errorf("connection refused")
}

// --- rate limit tests ---

func TestRateLimit_RejectsThirdCallInWindow(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	limiter := NewLimiter(RateLimitConfig{MaxCalls: 2, Window: "60s"}).WithClock(clock.Now)
	fn := RateLimit("course_roster", "teacher-1", countingFunc(&calls), limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := fn(ctx, dag.Args{"course_id": "c1"}); err != nil {
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
		clock.Advance(10 * time.Second)
	}

	_, err := fn(ctx, dag.Args{"course_id": "c1"})
	if !errors.HasCode(err, errors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if !stderrors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded in chain, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("underlying function must not run when limited, got %d calls", calls.Load())
	}

	// The first call leaves the window 60s after it was made.
	clock.Advance(41 * time.Second)
	if _, err := fn(ctx, dag.Args{"course_id": "c1"}); err != nil {
		t.Fatalf("expected call to pass once the window slid, got %v", err)
	}
}

func TestRateLimit_SubjectsAreIndependent(t *testing.T) {
	var calls atomic.Int32
	limiter := NewLimiter(RateLimitConfig{MaxCalls: 1, Window: "1m"})
	fn := RateLimit("course_roster", "", countingFunc(&calls), limiter)

	a := WithSubject(context.Background(), "teacher-a")
	b := WithSubject(context.Background(), "teacher-b")
	if _, err := fn(a, nil); err != nil {
		t.Fatalf("teacher-a: %v", err)
	}
	if _, err := fn(b, nil); err != nil {
		t.Fatalf("teacher-b must not share teacher-a's window: %v", err)
	}
	if _, err := fn(a, nil); !errors.HasCode(err, errors.ErrCodeRateLimited) {
		t.Fatalf("expected teacher-a to be limited, got %v", err)
	}
	if got := limiter.Remaining("course_roster", "teacher-b"); got != 0 {
		t.Fatalf("expected 0 remaining for teacher-b, got %d", got)
	}
	if got := limiter.Remaining("course_roster", "nobody"); got != 1 {
		t.Fatalf("expected 1 remaining for a new subject, got %d", got)
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{MaxCalls: 2, Window: "60s"}, false},
		{"zero calls", RateLimitConfig{MaxCalls: 0, Window: "60s"}, true},
		{"bad window", RateLimitConfig{MaxCalls: 1, Window: "soon"}, true},
		{"negative window", RateLimitConfig{MaxCalls: 1, Window: "-1s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// --- memoize tests ---

func TestCacheKey_Canonical(t *testing.T) {
	a, err := CacheKey("svc", dag.Args{"b": 1, "a": []any{"x"}})
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	b, _ := CacheKey("svc", dag.Args{"a": []any{"x"}, "b": 1})
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if a != `svc,{"a":["x"],"b":1}` {
		t.Fatalf("unexpected key %q", a)
	}
	if _, err := CacheKey("svc", dag.Args{"f": func() {}}); err == nil {
		t.Fatal("expected error for unserializable args")
	}
}

func TestMemoize_CachesByArguments(t *testing.T) {
	var calls atomic.Int32
	fn := Memoize("course_roster", countingFunc(&calls), NewMemoryCache(time.Minute, 10), MemoConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := fn(ctx, dag.Args{"course_id": "c1"})
		if err != nil || v != "roster:c1" {
			t.Fatalf("call %d: got %v (err=%v)", i, v, err)
		}
	}
	if _, err := fn(ctx, dag.Args{"course_id": "c2"}); err != nil {
		t.Fatalf("c2: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 invocations, got %d", calls.Load())
	}
}

func TestMemoize_CollapsesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	slow := func(context.Context, dag.Args) (any, error) {
		calls.Add(1)
		<-release
		return "done", nil
	}
	fn := Memoize("slow", slow, NewMemoryCache(time.Minute, 10), MemoConfig{})

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = fn(context.Background(), dag.Args{"k": 1})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected a single invocation, got %d", calls.Load())
	}
	for i, r := range results {
		if r != "done" {
			t.Fatalf("caller %d got %v", i, r)
		}
	}
}

func TestMemoize_DrainsStreams(t *testing.T) {
	var calls atomic.Int32
	fn := Memoize("feed", func(context.Context, dag.Args) (any, error) {
		calls.Add(1)
		return stream.FromSlice([]any{1, 2}), nil
	}, NewMemoryCache(0, 10), MemoConfig{})

	for i := 0; i < 2; i++ {
		v, err := fn(context.Background(), nil)
		if err != nil || !reflect.DeepEqual(v, []any{1, 2}) {
			t.Fatalf("call %d: got %v (err=%v)", i, v, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 invocation, got %d", calls.Load())
	}
}

func TestMemoize_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	fn := Memoize("flaky", func(context.Context, dag.Args) (any, error) {
		if calls.Add(1) == 1 {
			return nil, fmt.Errorf("temporary")
		}
		return "ok", nil
	}, NewMemoryCache(time.Minute, 10), MemoConfig{})

	if _, err := fn(context.Background(), nil); err == nil {
		t.Fatal("expected first call to fail")
	}
	if v, err := fn(context.Background(), nil); err != nil || v != "ok" {
		t.Fatalf("expected retry to reach the function, got %v (err=%v)", v, err)
	}
}

func TestMemoize_CacheUnavailable(t *testing.T) {
	var calls atomic.Int32
	strict := Memoize("svc", countingFunc(&calls), unavailableCache{}, MemoConfig{})
	if _, err := strict(context.Background(), nil); !errors.HasCode(err, errors.ErrCodeStateStoreUnavailable) {
		t.Fatalf("expected STATE_STORE_UNAVAILABLE, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no invocation, got %d", calls.Load())
	}

	tolerant := Memoize("svc", countingFunc(&calls), unavailableCache{}, MemoConfig{TolerateStoreErrors: true})
	v, err := tolerant(context.Background(), dag.Args{"course_id": "c9"})
	if err != nil || v != "roster:c9" {
		t.Fatalf("expected call through, got %v (err=%v)", v, err)
	}
}

func TestMemoryCache_TTLAndBound(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(time.Minute, 2).WithClock(clock.Now)
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1)
	clock.Advance(time.Second)
	_ = c.Set(ctx, "b", 2)
	clock.Advance(time.Second)
	_ = c.Set(ctx, "c", 3)

	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if v, ok, _ := c.Get(ctx, "c"); !ok || v != 3 {
		t.Fatalf("expected c=3, got %v (ok=%v)", v, ok)
	}

	clock.Advance(time.Minute)
	if _, ok, _ := c.Get(ctx, "c"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestStoreCache(t *testing.T) {
	store := statestore.NewMemoryStore()
	var calls atomic.Int32
	cache, err := NewCache(MemoConfig{Backend: "store"}, store)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	fn := Memoize("course_roster", countingFunc(&calls), cache, MemoConfig{})

	_, _ = fn(context.Background(), dag.Args{"course_id": "c1"})
	_, _ = fn(context.Background(), dag.Args{"course_id": "c1"})
	if calls.Load() != 1 {
		t.Fatalf("expected 1 invocation, got %d", calls.Load())
	}
	v, ok, _ := store.Get(context.Background(), `memo,course_roster,{"course_id":"c1"}`)
	if !ok || v != "roster:c1" {
		t.Fatalf("expected result in the state store, got %v (ok=%v)", v, ok)
	}

	if _, err := NewCache(MemoConfig{Backend: "store"}, nil); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := NewCache(MemoConfig{Backend: "disk"}, store); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestWrap(t *testing.T) {
	var calls atomic.Int32
	cfg := Config{
		RateLimits: map[string]RateLimitConfig{"course_roster": {MaxCalls: 2, Window: "1m"}},
		Memoize:    map[string]MemoConfig{"course_roster": {}},
	}
	fn, err := Wrap("course_roster", countingFunc(&calls), cfg, nil)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	ctx := WithSubject(context.Background(), "teacher-1")
	for i := 0; i < 2; i++ {
		if _, err := fn(ctx, dag.Args{"course_id": "c1"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := fn(ctx, dag.Args{"course_id": "c1"}); !errors.HasCode(err, errors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected memoized single invocation, got %d", calls.Load())
	}

	plain, err := Wrap("other", countingFunc(&calls), cfg, nil)
	if err != nil || plain == nil {
		t.Fatalf("expected unguarded function, got err=%v", err)
	}
}
