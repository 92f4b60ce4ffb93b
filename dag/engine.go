package dag

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
)

// Request asks for exports of a query document, given either by name
// (resolved through the library) or inline.
type Request struct {
	// ExecutionDAG names a document in the library. Ignored when Document
	// is set.
	ExecutionDAG string
	// Document is an inline query document.
	Document      *query.Document
	TargetExports []string
	Kwargs        map[string]any
}

type requestWire struct {
	ExecutionDAG  json.RawMessage `json:"execution_dag"`
	TargetExports []string        `json:"target_exports,omitempty"`
	Kwargs        map[string]any  `json:"kwargs,omitempty"`
}

// UnmarshalJSON accepts execution_dag as a document name or a document.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Request{TargetExports: w.TargetExports, Kwargs: w.Kwargs}
	raw := bytes.TrimSpace(w.ExecutionDAG)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil
	case raw[0] == '"':
		return json.Unmarshal(raw, &r.ExecutionDAG)
	default:
		doc, err := query.ParseJSON(raw)
		if err != nil {
			return err
		}
		r.Document = doc
		return nil
	}
}

// MarshalJSON writes the document inline when present, else its name.
func (r Request) MarshalJSON() ([]byte, error) {
	var dag any = r.ExecutionDAG
	if r.Document != nil {
		dag = r.Document
	}
	raw, err := json.Marshal(dag)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestWire{ExecutionDAG: raw, TargetExports: r.TargetExports, Kwargs: r.Kwargs})
}

// Engine answers requests: it resolves the document, runs the executor
// and returns the exports.
type Engine struct {
	executor *Executor
	library  *query.Library
	service  string
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewEngine creates an Engine. library may be nil when only inline
// documents are served.
func NewEngine(executor *Executor, library *query.Library, service string, metrics *observability.Metrics) *Engine {
	return &Engine{
		executor: executor,
		library:  library,
		service:  service,
		metrics:  metrics,
		log:      logger.WithComponent("dag.engine"),
	}
}

// Handle runs req and returns each requested export's value. A failed
// export maps to its *NodeError.
func (e *Engine) Handle(ctx context.Context, req Request) (map[string]any, error) {
	requestID := uuid.NewString()
	name := req.ExecutionDAG
	if req.Document != nil {
		name = "inline"
	}

	ctx = logger.ContextWithRequestID(ctx, requestID)
	ctx, run := observability.StartQuery(ctx, e.service, name, requestID, e.metrics)
	log := e.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldDocument, name))

	res, err := e.handle(ctx, req)
	if err != nil {
		run.End(ctx, "error", err)
		log.Error("query failed", logger.ErrorFields("execute", err))
		return nil, err
	}

	status := "success"
	for export, v := range res.Exports {
		if ne, ok := v.(*NodeError); ok {
			status = "partial"
			log.Warn("export failed", logger.Fields(
				logger.FieldExport, export,
				logger.FieldError, ne.Message,
				"provenance", ne.Provenance,
			))
		}
	}
	run.End(ctx, status, nil)
	log.Debug("query completed", logger.DurationFields("execute", res.Duration))
	return res.Exports, nil
}

func (e *Engine) handle(ctx context.Context, req Request) (*Result, error) {
	doc, err := e.document(req)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, doc, req.Kwargs, req.TargetExports)
}

func (e *Engine) document(req Request) (*query.Document, error) {
	if req.Document != nil {
		return query.Compile(req.Document)
	}
	if req.ExecutionDAG == "" {
		return nil, errors.InvalidInput("execution_dag", "a document or document name is required")
	}
	if e.library == nil {
		return nil, errors.NotFound("query", req.ExecutionDAG)
	}
	return e.library.Get(req.ExecutionDAG)
}
