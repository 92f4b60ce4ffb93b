package dag

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// Node statuses reported in NodeResult.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Executor evaluates query documents against a function registry and a
// state store. It is safe for concurrent use; every Execute call has its
// own run state.
type Executor struct {
	functions *FunctionRegistry
	store     statestore.Store
	reducers  ReducerCatalog
	cfg       Config
	log       *logger.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithStore sets the state store read by keys nodes.
func WithStore(s statestore.Store) Option {
	return func(e *Executor) { e.store = s }
}

// WithReducers sets the catalog used to validate keys functions and to
// supply defaults for absent state.
func WithReducers(c ReducerCatalog) Option {
	return func(e *Executor) { e.reducers = c }
}

// WithConfig sets executor tuning.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		cfg.ApplyDefaults()
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithMetrics enables node metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides the clock used to timestamp node errors.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor over functions.
func NewExecutor(functions *FunctionRegistry, opts ...Option) *Executor {
	e := &Executor{
		functions: functions,
		log:       logger.WithComponent("dag"),
		now:       time.Now,
	}
	e.cfg.ApplyDefaults()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute computes targets (all exports when empty) of doc with params.
//
// Unknown targets and unknown functions abort before any node runs, as do
// context cancellation and invalid documents. Every other failure is
// isolated: the export resolves to a *NodeError and unrelated exports
// still succeed. Streams are drained, so export values are plain values
// or []any.
func (e *Executor) Execute(ctx context.Context, doc *query.Document, params map[string]any, targets []string) (*Result, error) {
	start := time.Now()
	if doc == nil {
		return nil, errors.InvalidInput("execution_dag", "document is required")
	}
	doc, err := query.Compile(doc)
	if err != nil {
		return nil, err
	}

	targets = dedupe(targets)
	if len(targets) == 0 {
		targets = doc.ExportNames()
	}
	for _, t := range targets {
		if _, ok := doc.Exports[t]; !ok {
			return nil, errors.NotFound("export", t)
		}
	}
	if err := e.checkFunctions(doc); err != nil {
		return nil, err
	}

	result := &Result{
		Exports:     make(map[string]any, len(targets)),
		NodeResults: make(map[string]NodeResult),
	}
	runnable := make([]string, 0, len(targets))
	for _, t := range targets {
		if ne := e.checkExportParams(doc, t, params); ne != nil {
			result.Exports[t] = ne
			continue
		}
		runnable = append(runnable, t)
	}

	plan, err := BuildPlan(doc, runnable)
	if err != nil {
		return nil, err
	}

	r := &run{ex: e, doc: doc, params: params, state: NewState(plan.Consumers)}
	defer func() {
		if err := r.state.Close(); err != nil {
			e.log.Warn("closing node streams failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	for _, level := range plan.Levels {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err)
		}
		if err := r.level(ctx, level, result); err != nil {
			return nil, errors.Wrap(err)
		}
	}

	for _, t := range runnable {
		v, err := r.export(ctx, t)
		if err != nil {
			return nil, errors.Wrap(err)
		}
		result.Exports[t] = v
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (e *Executor) checkFunctions(doc *query.Document) error {
	for _, name := range doc.NodeNames() {
		n := doc.ExecutionDAG[name]
		switch n.Type {
		case query.TypeCall:
			if _, ok := e.functions.Get(n.Function); !ok {
				return errors.UnknownFunction(name, n.Function)
			}
		case query.TypeKeys:
			if e.reducers == nil {
				continue
			}
			if _, ok := e.reducers.Default(n.Function); !ok {
				return errors.UnknownFunction(name, n.Function)
			}
		}
	}
	return nil
}

func (e *Executor) checkExportParams(doc *query.Document, export string, params map[string]any) *NodeError {
	exp := doc.Exports[export]
	for _, p := range exp.Parameters {
		if _, ok := params[p]; !ok {
			return newNodeError(exp.Returns, functionOf(doc.ExecutionDAG[exp.Returns]), errors.MissingParameter(p), e.now())
		}
	}
	return nil
}

func (e *Executor) record(ctx context.Context, n *query.Node, nr NodeResult) {
	e.metrics.RecordNode(ctx, string(n.Type), functionOf(n), nr.Status, nr.Duration)
	if nr.Error == nil {
		return
	}
	fields := logger.Fields(
		logger.FieldNode, nr.Name,
		logger.FieldFunction, nr.Error.Function,
		logger.FieldError, nr.Error.Message,
		"provenance", nr.Error.Provenance,
	)
	// Dependents of a failed node only carry the error along.
	if len(nr.Error.Provenance) > 1 {
		e.log.Debug("dag node skipped", fields)
		return
	}
	e.log.Warn("dag node failed", fields)
}

// run is the state of one Execute call.
type run struct {
	ex     *Executor
	doc    *query.Document
	params map[string]any
	state  *State
}

func (r *run) level(ctx context.Context, names []string, result *Result) error {
	var g errgroup.Group
	if r.ex.cfg.MaxParallel > 0 {
		g.SetLimit(r.ex.cfg.MaxParallel)
	}
	var mu sync.Mutex
	for _, name := range names {
		g.Go(func() error {
			start := time.Now()
			n := r.doc.ExecutionDAG[name]
			value, err := r.traced(ctx, name, n)
			if err != nil {
				return err
			}
			r.state.Set(name, value)

			nr := NodeResult{Name: name, Status: StatusCompleted, Duration: time.Since(start)}
			if ne, ok := value.(*NodeError); ok {
				nr.Status = StatusFailed
				nr.Error = ne
			}
			mu.Lock()
			result.NodeResults[name] = nr
			mu.Unlock()
			r.ex.record(ctx, n, nr)
			return nil
		})
	}
	return g.Wait()
}

func (r *run) traced(ctx context.Context, name string, n *query.Node) (any, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanDAGNode)
	defer span.End()
	span.SetAttributes(
		attribute.String(observability.AttrNode, name),
		attribute.String(observability.AttrNodeType, string(n.Type)),
		attribute.String(observability.AttrFunction, functionOf(n)),
	)

	value, err := r.evalNode(ctx, name, n)
	switch {
	case err != nil:
		observability.SetSpanError(ctx, err)
	case isNodeError(value):
		observability.SetSpanError(ctx, value.(*NodeError))
	}
	return value, err
}

func (r *run) export(ctx context.Context, name string) (any, error) {
	returns := r.doc.Exports[name].Returns
	v, _ := r.state.Take(returns)
	it, ok := v.(stream.Iterator[any])
	if !ok {
		return v, nil
	}
	items, err := stream.Collect(ctx, it)
	if err == nil {
		return items, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return r.failure(returns, functionOf(r.doc.ExecutionDAG[returns]), err), nil
}

func isNodeError(v any) bool {
	_, ok := v.(*NodeError)
	return ok
}

// functionOf names the function identity reported for a node.
func functionOf(n *query.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case query.TypeCall, query.TypeKeys:
		return n.Function
	}
	return string(n.Type)
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
