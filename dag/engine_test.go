package dag

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
)

const inlineRequest = `{
  "execution_dag": {
    "execution_dag": {
      "roster": {"type": "call", "function": "course_roster",
                 "args": {"course_id": {"type": "parameter", "name": "course_id", "required": true}}},
      "counts": {"type": "keys", "function": "event_count", "source": {"type": "variable", "name": "roster"},
                 "scope": ["STUDENT"], "path": "user_id"}
    },
    "exports": {"counts": {"returns": "counts", "parameters": ["course_id"]}}
  },
  "target_exports": ["counts"],
  "kwargs": {"course_id": "c1"}
}`

func newTestEngine(t *testing.T, lib *query.Library) *Engine {
	t.Helper()
	ex := newTestExecutor(t, map[string]Func{"course_roster": roster(3)},
		WithStore(statestore.NewMemoryStore()),
		WithReducers(catalog{"event_count": map[string]any{"count": 0}}),
	)
	return NewEngine(ex, lib, "test", nil)
}

func TestRequest_UnmarshalInline(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(inlineRequest), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Document == nil || req.ExecutionDAG != "" {
		t.Fatalf("expected inline document, got %+v", req)
	}
	if len(req.Document.ExecutionDAG) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(req.Document.ExecutionDAG))
	}
	if req.Kwargs["course_id"] != "c1" || len(req.TargetExports) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRequest_UnmarshalNamed(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"execution_dag": "roster_counts", "kwargs": {"course_id": 7}}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ExecutionDAG != "roster_counts" || req.Document != nil {
		t.Fatalf("expected named request, got %+v", req)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Request
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ExecutionDAG != "roster_counts" {
		t.Fatalf("expected name to survive, got %+v", back)
	}
}

func TestEngine_HandleInline(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(inlineRequest), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := newTestEngine(t, nil).Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	items, ok := out["counts"].([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 counts, got %v", out["counts"])
	}
}

func TestEngine_HandleNamed(t *testing.T) {
	lib := query.NewLibrary()
	if err := lib.Register("roster_counts", rosterCountsDoc()); err != nil {
		t.Fatalf("register: %v", err)
	}
	lib.Freeze()

	out, err := newTestEngine(t, lib).Handle(context.Background(), Request{
		ExecutionDAG: "roster_counts",
		Kwargs:       map[string]any{"course_id": "c1"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if items := out["counts"].([]any); len(items) != 3 {
		t.Fatalf("expected 3 counts, got %v", items)
	}
}

func TestEngine_HandleErrors(t *testing.T) {
	lib := query.NewLibrary()
	engine := newTestEngine(t, lib)

	tests := []struct {
		name string
		req  Request
		code errors.ErrorCode
	}{
		{"no document", Request{}, errors.ErrCodeInvalidInput},
		{"unknown name", Request{ExecutionDAG: "missing"}, errors.ErrCodeNotFound},
		{"invalid inline", Request{Document: &query.Document{}}, errors.ErrCodeSchemaValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Handle(context.Background(), tt.req)
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNodeError_WireShape(t *testing.T) {
	ne := &NodeError{
		Message:    "boom",
		Code:       errors.ErrCodeDAGExecution,
		Function:   "explode",
		Provenance: []string{"a", "b"},
		Timestamp:  fixedNow,
	}
	data, err := json.Marshal(ne)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"error":"boom","code":"DAG_EXECUTION","function":"explode","error_provenance":["a","b"],"timestamp":"2026-03-01T12:00:00Z"}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	carried := ne.through("c")
	if len(ne.Provenance) != 2 || len(carried.Provenance) != 3 {
		t.Fatalf("through must copy: original %v, carried %v", ne.Provenance, carried.Provenance)
	}
}
