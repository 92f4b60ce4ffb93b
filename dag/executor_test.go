package dag

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// --- test helpers ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type catalog map[string]any

func (c catalog) Default(id string) (any, bool) {
	v, ok := c[id]
	return v, ok
}

func ref(name string) *query.Value {
	v := query.Ref(name)
	return &v
}

func newTestExecutor(t *testing.T, funcs map[string]Func, opts ...Option) *Executor {
	t.Helper()
	reg := NewFunctionRegistry()
	for name, fn := range funcs {
		if err := reg.Register(name, fn); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	reg.Freeze()
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithLogger(logger.Nop())}
	return NewExecutor(reg, append(base, opts...)...)
}

func roster(n int) Func {
	return func(_ context.Context, args Args) (any, error) {
		if args["course_id"] == nil {
			return nil, fmt.Errorf("course_id is required")
		}
		out := make([]any, n)
		for i := range out {
			out[i] = map[string]any{"user_id": fmt.Sprintf("s%d", i)}
		}
		return out, nil
	}
}

func rosterCountsDoc() *query.Document {
	return &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"roster": {
				Type:     query.TypeCall,
				Function: "course_roster",
				Args:     map[string]query.Value{"course_id": query.Param("course_id", true)},
			},
			"counts": {
				Type:     query.TypeKeys,
				Function: "event_count",
				Source:   ref("roster"),
				Scope:    []keys.Field{keys.Student},
				Path:     "user_id",
			},
		},
		Exports: map[string]query.Export{
			"counts": {Returns: "counts", Parameters: []string{"course_id"}},
		},
	}
}

func nodeErrorOf(t *testing.T, v any) *NodeError {
	t.Helper()
	ne, ok := v.(*NodeError)
	if !ok {
		t.Fatalf("expected *NodeError, got %T (%v)", v, v)
	}
	return ne
}

type failingStore struct{ *statestore.MemoryStore }

func (failingStore) MultiGet(context.Context, []string) ([]any, error) {
	return nil, fmt.Errorf("connection refused")
}

type batchStore struct {
	*statestore.MemoryStore
	mu      sync.Mutex
	batches []int
}

func (s *batchStore) MultiGet(ctx context.Context, ks []string) ([]any, error) {
	s.mu.Lock()
	s.batches = append(s.batches, len(ks))
	s.mu.Unlock()
	return s.MemoryStore.MultiGet(ctx, ks)
}

// --- executor tests ---

func TestExecute_RosterJoinDefaults(t *testing.T) {
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(10)},
		WithStore(statestore.NewMemoryStore()),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)

	res, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, []string{"counts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := res.Exports["counts"].([]any)
	if !ok {
		t.Fatalf("expected []any, got %T", res.Exports["counts"])
	}
	if len(items) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(items))
	}
	for i, item := range items {
		want := map[string]any{"user_id": fmt.Sprintf("s%d", i), "count": 0}
		if !reflect.DeepEqual(item, want) {
			t.Errorf("entry %d: expected %v, got %v", i, want, item)
		}
	}
}

func TestExecute_KeysReadsStoredState(t *testing.T) {
	store := statestore.NewMemoryStore()
	key := keys.Build("event_count", keys.NewScope(keys.Student), keys.Dimensions{keys.Student: "s1"}, keys.External)
	if err := store.Set(context.Background(), key, map[string]any{"count": 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(3)},
		WithStore(store),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)

	res, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := res.Exports["counts"].([]any)
	got := []any{}
	for _, item := range items {
		got = append(got, item.(map[string]any)["count"])
	}
	if !reflect.DeepEqual(got, []any{0, 3, 0}) {
		t.Fatalf("expected counts [0 3 0], got %v", got)
	}
}

func TestExecute_KeysNestsScalarState(t *testing.T) {
	store := statestore.NewMemoryStore()
	key := keys.Build("last_seen", keys.NewScope(keys.Student, keys.Resource),
		keys.Dimensions{keys.Student: "s0", keys.Resource: "doc-7"}, keys.External)
	_ = store.Set(context.Background(), key, "yesterday")

	doc := rosterCountsDoc()
	doc.ExecutionDAG["counts"].Function = "last_seen"
	doc.ExecutionDAG["counts"].Scope = []keys.Field{keys.Student, keys.Resource}
	doc.ExecutionDAG["counts"].Dimensions = map[keys.Field]query.Value{keys.Resource: query.Param("doc_id", true)}
	doc.ExecutionDAG["counts"].As = "seen"

	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(2)}, WithStore(store))
	res, err := ex.Execute(context.Background(), doc, map[string]any{"course_id": "c1", "doc_id": "doc-7"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := res.Exports["counts"].([]any)
	if got := items[0].(map[string]any)["seen"]; got != "yesterday" {
		t.Fatalf("expected s0 seen=yesterday, got %v", got)
	}
	if _, ok := items[1].(map[string]any)["seen"]; ok {
		t.Fatalf("expected no state for s1, got %v", items[1])
	}
}

func TestExecute_KeysBatching(t *testing.T) {
	store := &batchStore{MemoryStore: statestore.NewMemoryStore()}
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(10)},
		WithStore(store),
		WithConfig(Config{KeysBatchSize: 4}),
	)
	if _, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(store.batches, []int{1, 2, 4, 3}) {
		t.Fatalf("expected batches [1 2 4 3], got %v", store.batches)
	}
}

func TestExecute_KeysEmitsBeforeSourceDrained(t *testing.T) {
	var pulled atomic.Int32
	lazyRoster := func(context.Context, Args) (any, error) {
		return stream.FromFunc(func(context.Context) (any, bool, error) {
			n := pulled.Add(1)
			if n > 10 {
				return nil, false, nil
			}
			return map[string]any{"user_id": fmt.Sprintf("s%d", n)}, true, nil
		}, nil), nil
	}
	var pulledAtFirst int32
	first := func(ctx context.Context, args Args) (any, error) {
		it, ok := args["items"].(stream.Iterator[any])
		if !ok {
			return nil, fmt.Errorf("items is %T, want a stream", args["items"])
		}
		item, _, err := it.Next(ctx)
		pulledAtFirst = pulled.Load()
		return item, err
	}
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"roster": {Type: query.TypeCall, Function: "course_roster"},
			"counts": {
				Type:     query.TypeKeys,
				Function: "event_count",
				Source:   ref("roster"),
				Scope:    []keys.Field{keys.Student},
				Path:     "user_id",
			},
			"first": {Type: query.TypeCall, Function: "first", Args: map[string]query.Value{"items": query.Ref("counts")}},
		},
		Exports: map[string]query.Export{"first": {Returns: "first"}},
	}
	ex := newTestExecutor(t, map[string]Func{"course_roster": lazyRoster, "first": first},
		WithStore(statestore.NewMemoryStore()),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)
	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pulledAtFirst != 1 {
		t.Fatalf("source pulled %d times before the first keys item, want 1", pulledAtFirst)
	}
	got, ok := res.Exports["first"].(map[string]any)
	if !ok || got["user_id"] != "s1" || got["count"] != 0 {
		t.Fatalf("unexpected first item %v", res.Exports["first"])
	}
}

func TestExecute_StoreUnavailable(t *testing.T) {
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(2)},
		WithStore(failingStore{statestore.NewMemoryStore()}),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)
	res, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["counts"])
	if ne.Code != errors.ErrCodeStateStoreUnavailable {
		t.Fatalf("expected STATE_STORE_UNAVAILABLE, got %s", ne.Code)
	}
	if ne.Function != "event_count" {
		t.Fatalf("expected function event_count, got %q", ne.Function)
	}
}

func TestExecute_StoreUnavailableTolerated(t *testing.T) {
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(2)},
		WithStore(failingStore{statestore.NewMemoryStore()}),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
		WithConfig(Config{TolerateStoreErrors: true}),
	)
	res, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := res.Exports["counts"].([]any)
	if len(items) != 2 || items[1].(map[string]any)["count"] != 0 {
		t.Fatalf("expected defaults for both students, got %v", items)
	}
}

func branchDoc() *query.Document {
	return &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"a":       {Type: query.TypeCall, Function: "explode"},
			"a_total": {Type: query.TypeCall, Function: "count", Args: map[string]query.Value{"items": query.Ref("a")}},
			"b":       {Type: query.TypeCall, Function: "answer"},
		},
		Exports: map[string]query.Export{
			"from_a": {Returns: "a_total"},
			"from_b": {Returns: "b"},
		},
	}
}

func branchFuncs(countCalls *atomic.Int32) map[string]Func {
	return map[string]Func{
		"explode": func(context.Context, Args) (any, error) { return nil, fmt.Errorf("upstream exploded") },
		"answer":  func(context.Context, Args) (any, error) { return 42, nil },
		"count": func(ctx context.Context, args Args) (any, error) {
			countCalls.Add(1)
			it, err := toIterator(args["items"])
			if err != nil {
				return nil, err
			}
			items, err := stream.Collect(ctx, it)
			return len(items), err
		},
	}
}

func TestExecute_FailureIsolation(t *testing.T) {
	var countCalls atomic.Int32
	ex := newTestExecutor(t, branchFuncs(&countCalls))

	res, err := ex.Execute(context.Background(), branchDoc(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Exports["from_b"] != 42 {
		t.Fatalf("expected from_b=42, got %v", res.Exports["from_b"])
	}
	ne := nodeErrorOf(t, res.Exports["from_a"])
	if ne.Function != "explode" {
		t.Errorf("expected function explode, got %q", ne.Function)
	}
	if !reflect.DeepEqual(ne.Provenance, []string{"a", "a_total"}) {
		t.Errorf("expected provenance [a a_total], got %v", ne.Provenance)
	}
	if ne.Message != "upstream exploded" {
		t.Errorf("unexpected message %q", ne.Message)
	}
	if ne.Code != errors.ErrCodeDAGExecution {
		t.Errorf("expected DAG_EXECUTION, got %s", ne.Code)
	}
	if !ne.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, ne.Timestamp)
	}
	if countCalls.Load() != 0 {
		t.Errorf("dependent of a failed node must not be invoked, got %d calls", countCalls.Load())
	}

	if got := res.NodeResults["a"]; got.Status != StatusFailed || !reflect.DeepEqual(got.Error.Provenance, []string{"a"}) {
		t.Errorf("unexpected node result for a: %+v", got)
	}
	if got := res.NodeResults["b"]; got.Status != StatusCompleted {
		t.Errorf("expected b completed, got %s", got.Status)
	}
}

func TestExecute_Deterministic(t *testing.T) {
	var countCalls atomic.Int32
	ex := newTestExecutor(t, branchFuncs(&countCalls), WithConfig(Config{MaxParallel: 1}))
	first, err := ex.Execute(context.Background(), branchDoc(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ex = newTestExecutor(t, branchFuncs(&countCalls))
	for i := 0; i < 5; i++ {
		again, err := ex.Execute(context.Background(), branchDoc(), nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Exports, again.Exports) {
			t.Fatalf("run %d differs: %v vs %v", i, first.Exports, again.Exports)
		}
	}
}

func TestExecute_PrunesUnrequestedExports(t *testing.T) {
	var countCalls atomic.Int32
	explodeCalls := 0
	funcs := branchFuncs(&countCalls)
	funcs["explode"] = func(context.Context, Args) (any, error) {
		explodeCalls++
		return nil, fmt.Errorf("boom")
	}
	ex := newTestExecutor(t, funcs)

	res, err := ex.Execute(context.Background(), branchDoc(), nil, []string{"from_b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Exports) != 1 || res.Exports["from_b"] != 42 {
		t.Fatalf("expected only from_b, got %v", res.Exports)
	}
	if explodeCalls != 0 {
		t.Fatalf("expected branch a to be pruned, explode ran %d times", explodeCalls)
	}
}

func TestExecute_SharedStreamInvokedOnce(t *testing.T) {
	var calls, pulls atomic.Int32
	funcs := map[string]Func{
		"events": func(context.Context, Args) (any, error) {
			calls.Add(1)
			items := []any{"e1", "e2", "e3"}
			var mu sync.Mutex
			i := 0
			return stream.FromFunc(func(context.Context) (any, bool, error) {
				mu.Lock()
				defer mu.Unlock()
				if i >= len(items) {
					return nil, false, nil
				}
				pulls.Add(1)
				v := items[i]
				i++
				return v, true, nil
			}, nil), nil
		},
		"length": func(ctx context.Context, args Args) (any, error) {
			items, err := stream.Collect(ctx, args["items"].(stream.Iterator[any]))
			return len(items), err
		},
	}
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"events": {Type: query.TypeCall, Function: "events"},
			"n":      {Type: query.TypeCall, Function: "length", Args: map[string]query.Value{"items": query.Ref("events")}},
			"m":      {Type: query.TypeCall, Function: "length", Args: map[string]query.Value{"items": query.Ref("events")}},
		},
		Exports: map[string]query.Export{
			"events": {Returns: "events"},
			"n":      {Returns: "n"},
			"m":      {Returns: "m"},
		},
	}
	ex := newTestExecutor(t, funcs)

	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one collaborator invocation, got %d", calls.Load())
	}
	if pulls.Load() != 3 {
		t.Errorf("expected each item produced once, got %d pulls", pulls.Load())
	}
	if res.Exports["n"] != 3 || res.Exports["m"] != 3 {
		t.Errorf("expected both consumers to see 3 items, got n=%v m=%v", res.Exports["n"], res.Exports["m"])
	}
	if !reflect.DeepEqual(res.Exports["events"], []any{"e1", "e2", "e3"}) {
		t.Errorf("unexpected events export %v", res.Exports["events"])
	}
}

func TestExecute_StreamErrorSurfacesOnDrain(t *testing.T) {
	funcs := map[string]Func{
		"flaky": func(context.Context, Args) (any, error) {
			i := 0
			return stream.FromFunc(func(context.Context) (any, bool, error) {
				i++
				if i == 2 {
					return nil, false, fmt.Errorf("feed dropped")
				}
				return map[string]any{"id": i}, true, nil
			}, nil), nil
		},
	}
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"feed": {Type: query.TypeCall, Function: "flaky"},
			"joined": {
				Type:     query.TypeSelect,
				Source:   ref("feed"),
				Joins:    map[string]query.Value{"extra": query.Lit([]any{})},
				JoinPath: "id",
			},
		},
		Exports: map[string]query.Export{"joined": {Returns: "joined"}},
	}
	ex := newTestExecutor(t, funcs)

	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["joined"])
	if ne.Function != "flaky" || !reflect.DeepEqual(ne.Provenance, []string{"feed", "joined"}) {
		t.Fatalf("unexpected error object %+v", ne)
	}
}

func TestExecute_SelectJoin(t *testing.T) {
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"students": {Type: query.TypeLiteral, Value: []any{
				map[string]any{"user_id": "s1"},
				map[string]any{"user_id": "s2"},
				map[string]any{"user_id": "s3"},
			}},
			"profiles": {Type: query.TypeCall, Function: "profiles"},
			"joined": {
				Type:     query.TypeSelect,
				Source:   ref("students"),
				Joins:    map[string]query.Value{"profile": query.Ref("profiles"), "docs": query.Lit([]any{})},
				JoinPath: "user_id",
				Defaults: map[string]any{"profile": map[string]any{"name": "unknown"}},
			},
		},
		Exports: map[string]query.Export{"joined": {Returns: "joined"}},
	}
	funcs := map[string]Func{
		"profiles": func(context.Context, Args) (any, error) {
			return []map[string]any{
				{"user_id": "s2", "name": "Bea"},
				{"user_id": "s1", "name": "Ann"},
				{"user_id": "s1", "name": "duplicate"},
			}, nil
		},
	}
	ex := newTestExecutor(t, funcs)

	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{
		map[string]any{"user_id": "s1", "profile": map[string]any{"user_id": "s1", "name": "Ann"}},
		map[string]any{"user_id": "s2", "profile": map[string]any{"user_id": "s2", "name": "Bea"}},
		map[string]any{"user_id": "s3", "profile": map[string]any{"name": "unknown"}},
	}
	if !reflect.DeepEqual(res.Exports["joined"], want) {
		t.Fatalf("expected %v, got %v", want, res.Exports["joined"])
	}
}

func TestExecute_SelectNonObjectItem(t *testing.T) {
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"joined": {
				Type:     query.TypeSelect,
				Source:   &query.Value{Literal: []any{"not-an-object"}},
				Joins:    map[string]query.Value{"x": query.Lit([]any{})},
				JoinPath: "id",
			},
		},
		Exports: map[string]query.Export{"joined": {Returns: "joined"}},
	}
	ex := newTestExecutor(t, nil)
	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["joined"])
	if ne.Function != "select" {
		t.Fatalf("expected function select, got %q", ne.Function)
	}
}

func TestExecute_UnknownFunction(t *testing.T) {
	var countCalls atomic.Int32
	funcs := branchFuncs(&countCalls)
	delete(funcs, "explode")
	answered := false
	funcs["answer"] = func(context.Context, Args) (any, error) {
		answered = true
		return 1, nil
	}
	ex := newTestExecutor(t, funcs)

	_, err := ex.Execute(context.Background(), branchDoc(), nil, nil)
	if !errors.HasCode(err, errors.ErrCodeUnknownFunction) {
		t.Fatalf("expected UNKNOWN_FUNCTION, got %v", err)
	}
	if answered {
		t.Fatal("no node may run when a function is unknown")
	}
}

func TestExecute_UnknownKeysFunction(t *testing.T) {
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(1)},
		WithStore(statestore.NewMemoryStore()),
		WithReducers(catalog{}),
	)
	_, err := ex.Execute(context.Background(), rosterCountsDoc(), map[string]any{"course_id": "c1"}, nil)
	if !errors.HasCode(err, errors.ErrCodeUnknownFunction) {
		t.Fatalf("expected UNKNOWN_FUNCTION, got %v", err)
	}
}

func TestExecute_UnknownExport(t *testing.T) {
	var countCalls atomic.Int32
	ex := newTestExecutor(t, branchFuncs(&countCalls))
	_, err := ex.Execute(context.Background(), branchDoc(), nil, []string{"nope"})
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestExecute_MissingExportParameter(t *testing.T) {
	doc := rosterCountsDoc()
	doc.ExecutionDAG["other"] = &query.Node{Type: query.TypeLiteral, Value: "ok"}
	doc.Exports["other"] = query.Export{Returns: "other"}
	rosterCalls := 0
	ex := newTestExecutor(t, map[string]Func{"course_roster": func(context.Context, Args) (any, error) {
		rosterCalls++
		return nil, nil
	}}, WithStore(statestore.NewMemoryStore()))

	res, err := ex.Execute(context.Background(), doc, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["counts"])
	if ne.Code != errors.ErrCodeMissingParameter {
		t.Fatalf("expected MISSING_PARAMETER, got %s", ne.Code)
	}
	if res.Exports["other"] != "ok" {
		t.Fatalf("expected other export to resolve, got %v", res.Exports["other"])
	}
	if rosterCalls != 0 {
		t.Fatalf("expected roster not to run, got %d calls", rosterCalls)
	}
}

func TestExecute_Parameters(t *testing.T) {
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"echo": {Type: query.TypeCall, Function: "echo", Args: map[string]query.Value{
				"required": query.Param("course_id", true),
				"fallback": query.Inline(&query.Node{Type: query.TypeParameter, Name: "limit", Default: 25}),
				"optional": query.Param("tag", false),
				"fixed":    query.Lit("x"),
			}},
		},
		Exports: map[string]query.Export{"echo": {Returns: "echo"}},
	}
	ex := newTestExecutor(t, map[string]Func{"echo": func(_ context.Context, args Args) (any, error) {
		return map[string]any(args), nil
	}})

	res, err := ex.Execute(context.Background(), doc, map[string]any{"course_id": "c1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"required": "c1", "fallback": 25, "optional": nil, "fixed": "x"}
	if !reflect.DeepEqual(res.Exports["echo"], want) {
		t.Fatalf("expected %v, got %v", want, res.Exports["echo"])
	}

	res, err = ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["echo"])
	if ne.Code != errors.ErrCodeMissingParameter || ne.Function != "echo" {
		t.Fatalf("unexpected error object %+v", ne)
	}
}

func TestExecute_VariableCarriesError(t *testing.T) {
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"a":     {Type: query.TypeCall, Function: "explode"},
			"alias": {Type: query.TypeVariable, Name: "a"},
		},
		Exports: map[string]query.Export{"alias": {Returns: "alias"}},
	}
	var countCalls atomic.Int32
	ex := newTestExecutor(t, branchFuncs(&countCalls))
	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ne := nodeErrorOf(t, res.Exports["alias"])
	if !reflect.DeepEqual(ne.Provenance, []string{"a", "alias"}) {
		t.Fatalf("expected provenance [a alias], got %v", ne.Provenance)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := newTestExecutor(t, map[string]Func{
		"slow": func(ctx context.Context, _ Args) (any, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{"s": {Type: query.TypeCall, Function: "slow"}},
		Exports:      map[string]query.Export{"s": {Returns: "s"}},
	}

	_, err := ex.Execute(ctx, doc, nil, nil)
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestExecute_FlattensInlineNodes(t *testing.T) {
	doc := &query.Document{
		ExecutionDAG: map[string]*query.Node{
			"counts": {
				Type:     query.TypeKeys,
				Function: "event_count",
				Source: &query.Value{Node: &query.Node{
					Type:     query.TypeCall,
					Function: "course_roster",
					Args:     map[string]query.Value{"course_id": query.Lit("c1")},
				}},
				Scope: []keys.Field{keys.Student},
				Path:  "user_id",
			},
		},
		Exports: map[string]query.Export{"counts": {Returns: "counts"}},
	}
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(2)},
		WithStore(statestore.NewMemoryStore()),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)
	res, err := ex.Execute(context.Background(), doc, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items := res.Exports["counts"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 entries, got %v", items)
	}
	if _, ok := res.NodeResults["counts.source"]; !ok {
		t.Fatalf("expected hoisted node counts.source, got %v", res.NodeResults)
	}
}

func TestExecute_RejectsInvalidFlatDocuments(t *testing.T) {
	tests := []struct {
		name string
		dag  map[string]*query.Node
	}{
		{"nil node", map[string]*query.Node{"a": nil}},
		{"dangling variable", map[string]*query.Node{"a": {Type: query.TypeVariable, Name: "missing"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newTestExecutor(t, nil)
			doc := &query.Document{ExecutionDAG: tt.dag, Exports: map[string]query.Export{"e": {Returns: "a"}}}
			_, err := ex.Execute(context.Background(), doc, nil, nil)
			if !errors.HasCode(err, errors.ErrCodeSchemaValidation) {
				t.Fatalf("expected SCHEMA_VALIDATION, got %v", err)
			}
		})
	}
}

func TestExecute_NilDocument(t *testing.T) {
	ex := newTestExecutor(t, nil)
	if _, err := ex.Execute(context.Background(), nil, nil, nil); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
