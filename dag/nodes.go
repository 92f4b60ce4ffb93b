package dag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// evalNode computes the result of one node. A returned error aborts the
// run; node failures are returned as *NodeError values.
func (r *run) evalNode(ctx context.Context, name string, n *query.Node) (any, error) {
	switch n.Type {
	case query.TypeLiteral:
		return n.Value, nil
	case query.TypeParameter:
		v, err := r.param(n)
		if err != nil {
			return r.fail(name, string(query.TypeParameter), err), nil
		}
		return v, nil
	case query.TypeVariable:
		v, _ := r.state.Take(n.Name)
		return r.carry(name, string(query.TypeVariable), v), nil
	case query.TypeCall:
		return r.call(ctx, name, n)
	case query.TypeSelect:
		return r.selectNode(name, n), nil
	case query.TypeKeys:
		return r.keysNode(name, n), nil
	}
	return r.fail(name, string(n.Type), fmt.Errorf("unsupported node type %q", n.Type)), nil
}

func (r *run) call(ctx context.Context, name string, n *query.Node) (any, error) {
	fn, ok := r.ex.functions.Get(n.Function)
	if !ok {
		return r.fail(name, n.Function, errors.UnknownFunction(name, n.Function)), nil
	}

	argNames := make([]string, 0, len(n.Args))
	for k := range n.Args {
		argNames = append(argNames, k)
	}
	sort.Strings(argNames)
	args := make(Args, len(n.Args))
	for _, k := range argNames {
		v, ne := r.resolve(name, n.Function, n.Args[k])
		if ne != nil {
			return ne, nil
		}
		args[k] = v
	}

	out, err := fn(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.failure(name, n.Function, err), nil
	}
	if it, ok := out.(stream.Iterator[any]); ok {
		return r.guard(name, n.Function, it), nil
	}
	return out, nil
}

func (r *run) selectNode(name string, n *query.Node) any {
	const function = "select"
	if n.Source == nil {
		return r.fail(name, function, fmt.Errorf("source is required"))
	}
	source, ne := r.resolveStream(name, function, *n.Source)
	if ne != nil {
		return ne
	}

	joinNames := make([]string, 0, len(n.Joins))
	for k := range n.Joins {
		joinNames = append(joinNames, k)
	}
	sort.Strings(joinNames)
	joins := make([]stream.Iterator[any], 0, len(joinNames))
	for _, k := range joinNames {
		it, ne := r.resolveStream(name, function, n.Joins[k])
		if ne != nil {
			_ = source.Close()
			for _, j := range joins {
				_ = j.Close()
			}
			return ne
		}
		joins = append(joins, it)
	}

	return r.guard(name, function, &selectIter{
		source:    source,
		joinNames: joinNames,
		joins:     joins,
		joinPath:  n.JoinPath,
		defaults:  n.Defaults,
	})
}

func (r *run) keysNode(name string, n *query.Node) any {
	if n.Source == nil {
		return r.fail(name, n.Function, fmt.Errorf("source is required"))
	}
	source, ne := r.resolveStream(name, n.Function, *n.Source)
	if ne != nil {
		return ne
	}

	dims := make(keys.Dimensions, len(n.Dimensions))
	for f, v := range n.Dimensions {
		val, ne := r.resolve(name, n.Function, v)
		if ne != nil {
			_ = source.Close()
			return ne
		}
		dims[normalizeField(f)] = scalarString(val)
	}
	paths := make(map[keys.Field]string, len(n.Paths))
	for f, p := range n.Paths {
		paths[normalizeField(f)] = p
	}
	kind, _ := keys.ParseKind(string(n.Kind))

	it := &keysIter{
		source:   stream.Ramp(source, r.ex.cfg.KeysBatchSize),
		function: n.Function,
		scope:    keys.NewScope(n.Scope...),
		kind:     kind,
		path:     n.Path,
		paths:    paths,
		dims:     dims,
		as:       n.As,
		store:    r.ex.store,
		tolerate: r.ex.cfg.TolerateStoreErrors,
		log:      r.ex.log.WithFields(logger.Fields(logger.FieldNode, name, logger.FieldFunction, n.Function)),
	}
	if r.ex.reducers != nil {
		it.def, it.hasDef = r.ex.reducers.Default(n.Function)
	}
	return r.guard(name, n.Function, it)
}

// resolve substitutes one argument slot of node.
func (r *run) resolve(node, function string, v query.Value) (any, *NodeError) {
	if v.Node == nil {
		return v.Literal, nil
	}
	switch v.Node.Type {
	case query.TypeVariable:
		val, _ := r.state.Take(v.Node.Name)
		if ne, ok := val.(*NodeError); ok {
			return nil, ne.through(node)
		}
		return val, nil
	case query.TypeParameter:
		val, err := r.param(v.Node)
		if err != nil {
			return nil, r.fail(node, function, err)
		}
		return val, nil
	case query.TypeLiteral:
		return v.Node.Value, nil
	}
	return nil, r.fail(node, function, fmt.Errorf("argument of type %q was not flattened", v.Node.Type))
}

func (r *run) resolveStream(node, function string, v query.Value) (stream.Iterator[any], *NodeError) {
	val, ne := r.resolve(node, function, v)
	if ne != nil {
		return nil, ne
	}
	it, err := toIterator(val)
	if err != nil {
		return nil, r.fail(node, function, err)
	}
	return it, nil
}

func (r *run) param(n *query.Node) (any, error) {
	if v, ok := r.params[n.Name]; ok {
		return v, nil
	}
	if n.Default != nil {
		return n.Default, nil
	}
	if n.Required {
		return nil, errors.MissingParameter(n.Name)
	}
	return nil, nil
}

// carry passes an upstream result through node.
func (r *run) carry(node, function string, v any) any {
	switch t := v.(type) {
	case *NodeError:
		return t.through(node)
	case stream.Iterator[any]:
		return r.guard(node, function, t)
	}
	return v
}

func (r *run) fail(node, function string, err error) *NodeError {
	return newNodeError(node, function, err, r.ex.now())
}

// failure turns err into node's error object. Errors that already carry
// a NodeError from upstream keep their origin.
func (r *run) failure(node, function string, err error) *NodeError {
	if ne, ok := asNodeError(err); ok {
		return ne.through(node)
	}
	return r.fail(node, function, err)
}

// guard attributes stream errors to node.
func (r *run) guard(node, function string, src stream.Iterator[any]) stream.Iterator[any] {
	return &nodeStream{run: r, node: node, function: function, source: src}
}

type nodeStream struct {
	run      *run
	node     string
	function string
	source   stream.Iterator[any]
}

func (s *nodeStream) Next(ctx context.Context) (any, bool, error) {
	v, ok, err := s.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		return nil, false, s.run.failure(s.node, s.function, err)
	}
	return v, ok, nil
}

func (s *nodeStream) Close() error { return s.source.Close() }

// selectIter merges each primary item with the joined items sharing its
// join value. Joined sources are indexed on the first pull.
type selectIter struct {
	source    stream.Iterator[any]
	joinNames []string
	joins     []stream.Iterator[any]
	joinPath  string
	defaults  map[string]any
	index     []map[string]any
	pos       int
}

func (it *selectIter) Next(ctx context.Context) (any, bool, error) {
	if it.index == nil {
		if err := it.buildIndex(ctx); err != nil {
			return nil, false, err
		}
	}
	item, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	defer func() { it.pos++ }()

	obj, isObj := asObject(item)
	if !isObj {
		return nil, false, fmt.Errorf("select: item %d is %T, not an object", it.pos, item)
	}
	out := copyObject(obj, len(it.joinNames))
	key, hasKey := lookup(obj, it.joinPath)
	for i, join := range it.joinNames {
		if hasKey {
			if match, found := it.index[i][scalarString(key)]; found {
				out[join] = match
				continue
			}
		}
		if d, found := it.defaults[join]; found {
			out[join] = d
		}
	}
	return out, true, nil
}

func (it *selectIter) buildIndex(ctx context.Context) error {
	index := make([]map[string]any, len(it.joins))
	for i, join := range it.joins {
		items, err := stream.Collect(ctx, join)
		if err != nil {
			return err
		}
		idx := make(map[string]any, len(items))
		for _, item := range items {
			key, ok := lookup(item, it.joinPath)
			if !ok {
				continue
			}
			k := scalarString(key)
			if _, dup := idx[k]; !dup {
				idx[k] = item
			}
		}
		index[i] = idx
	}
	it.index = index
	return nil
}

func (it *selectIter) Close() error {
	err := it.source.Close()
	for _, j := range it.joins {
		if cerr := j.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// keysIter annotates entities with the reducer state found under the key
// built from each entity's dimensions.
type keysIter struct {
	source   stream.Iterator[[]any]
	function string
	scope    keys.Scope
	kind     keys.Kind
	path     string
	paths    map[keys.Field]string
	dims     keys.Dimensions
	as       string
	def      any
	hasDef   bool
	store    statestore.Store
	tolerate bool
	log      *logger.Logger
	buf      []any
}

func (it *keysIter) Next(ctx context.Context) (any, bool, error) {
	for len(it.buf) == 0 {
		batch, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		it.buf, err = it.fetch(ctx, batch)
		if err != nil {
			return nil, false, err
		}
	}
	v := it.buf[0]
	it.buf = it.buf[1:]
	return v, true, nil
}

func (it *keysIter) Close() error { return it.source.Close() }

// Key returns the state key for entity.
func (it *keysIter) Key(entity any) string {
	dims := make(keys.Dimensions, len(it.scope))
	for _, f := range it.scope.Fields() {
		if d, ok := it.dims[f]; ok {
			dims[f] = d
			continue
		}
		path := it.path
		if p, ok := it.paths[f]; ok {
			path = p
		}
		if v, ok := lookup(entity, path); ok {
			dims[f] = scalarString(v)
		}
	}
	return keys.Build(it.function, it.scope, dims, it.kind)
}

func (it *keysIter) fetch(ctx context.Context, batch []any) ([]any, error) {
	ks := make([]string, len(batch))
	for i, entity := range batch {
		ks[i] = it.Key(entity)
	}

	var values []any
	var err error
	if it.store == nil {
		err = fmt.Errorf("no state store configured")
	} else {
		values, err = it.store.MultiGet(ctx, ks)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if !errors.HasCode(err, errors.ErrCodeStateStoreUnavailable) {
			err = errors.StateStoreUnavailable("multiget", err)
		}
		if !it.tolerate {
			return nil, err
		}
		it.log.Warn("state store unavailable, treating state as absent", logger.Fields(
			logger.FieldError, err.Error(),
			"keys", len(ks),
		))
		values = nil
	}

	out := make([]any, len(batch))
	for i, entity := range batch {
		var v any
		if i < len(values) {
			v = values[i]
		}
		out[i] = it.merge(entity, v)
	}
	return out, nil
}

func (it *keysIter) merge(entity, value any) map[string]any {
	var out map[string]any
	if obj, ok := asObject(entity); ok {
		out = copyObject(obj, 1)
	} else {
		out = map[string]any{"entity": entity}
	}

	if value == nil && it.hasDef {
		value = it.def
	}
	if value == nil {
		return out
	}
	if obj, ok := asObject(value); ok && it.as == "" {
		for k, v := range obj {
			out[k] = v
		}
		return out
	}
	field := it.as
	if field == "" {
		field = "value"
	}
	out[field] = value
	return out
}

func normalizeField(f keys.Field) keys.Field {
	return keys.Field(strings.ToUpper(string(f)))
}
