package dag

import (
	"sort"

	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
)

// Plan is the part of a flat document needed to compute a set of exports.
type Plan struct {
	// Levels groups the nodes by dependency depth. Nodes in one level do
	// not depend on each other.
	Levels [][]string
	// Consumers counts, per node, how many argument slots and exports
	// read its result.
	Consumers map[string]int
}

// BuildPlan prunes doc to the ancestors of the nodes returned by exports
// and orders them. doc must be flat.
func BuildPlan(doc *query.Document, exports []string) (*Plan, error) {
	roots := make([]string, 0, len(exports))
	for _, name := range exports {
		roots = append(roots, doc.Exports[name].Returns)
	}
	needed := doc.Ancestors(roots...)
	names := make([]string, 0, len(needed))
	for name := range needed {
		names = append(names, name)
	}
	sort.Strings(names)

	levels, err := query.BuildLevels(names, doc.Edges())
	if err != nil {
		return nil, err
	}

	consumers := make(map[string]int)
	for _, name := range names {
		n := doc.ExecutionDAG[name]
		if n == nil {
			continue
		}
		if n.Type == query.TypeVariable {
			consumers[n.Name]++
			continue
		}
		for _, v := range n.Values() {
			if ref, ok := v.RefName(); ok {
				consumers[ref]++
			}
		}
	}
	for _, root := range roots {
		consumers[root]++
	}
	return &Plan{Levels: levels, Consumers: consumers}, nil
}

// Size returns the number of planned nodes.
func (p *Plan) Size() int {
	n := 0
	for _, level := range p.Levels {
		n += len(level)
	}
	return n
}
