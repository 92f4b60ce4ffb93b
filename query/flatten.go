package query

import (
	"strconv"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Flatten returns a copy of doc in which every inline call, select or keys
// node is hoisted into a top-level node and replaced by a reference to it.
// The hoisted node is named "<parent>.<slot>" (for example "report.source"
// or "report.roster"), with "~2", "~3", ... appended on collision.
//
// After hoisting, every reference must name an existing node and the
// reference graph must be acyclic. doc is not modified. Flattening a
// document that is already flat returns an identical copy.
func Flatten(doc *Document) (*Document, error) {
	if doc == nil {
		return nil, errors.SchemaValidation("document is required")
	}
	out := doc.Clone()
	if out.ExecutionDAG == nil {
		return out, nil
	}

	f := &flattener{nodes: out.ExecutionDAG, taken: make(map[string]struct{}, len(out.ExecutionDAG))}
	for name := range out.ExecutionDAG {
		f.taken[name] = struct{}{}
	}
	for _, name := range doc.NodeNames() {
		f.visit(name, out.ExecutionDAG[name])
	}

	v := validation.New()
	for _, name := range out.NodeNames() {
		n := out.ExecutionDAG[name]
		if n == nil {
			continue
		}
		for _, ref := range n.References() {
			if _, ok := out.ExecutionDAG[ref]; !ok {
				v.Addf("execution_dag."+name, "references unknown node %q", ref)
			}
		}
	}
	if err := v.Err(); err != nil {
		return nil, errors.SchemaValidation(validation.Messages(err)...)
	}

	if _, err := BuildLevels(out.NodeNames(), out.Edges()); err != nil {
		return nil, err
	}
	return out, nil
}

type flattener struct {
	nodes map[string]*Node
	taken map[string]struct{}
}

func (f *flattener) visit(parent string, n *Node) {
	if n == nil {
		return
	}
	for _, s := range n.slots() {
		inner := s.value.Node
		if inner == nil || !inner.Type.Hoistable() {
			continue
		}
		name := f.fresh(parent + "." + s.label)
		f.nodes[name] = inner
		s.store(Ref(name))
		f.visit(name, inner)
	}
}

func (f *flattener) fresh(base string) string {
	name := base
	for i := 2; ; i++ {
		if _, ok := f.taken[name]; !ok {
			f.taken[name] = struct{}{}
			return name
		}
		name = base + "~" + strconv.Itoa(i)
	}
}

// IsFlat reports whether no node argument holds an inline call, select or
// keys node.
func (d *Document) IsFlat() bool {
	for _, n := range d.ExecutionDAG {
		if n == nil {
			continue
		}
		for _, v := range n.Values() {
			if v.Node != nil && v.Node.Type.Hoistable() {
				return false
			}
		}
	}
	return true
}
