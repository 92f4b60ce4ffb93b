package query

import (
	"sort"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// Edges returns the reference edges between the document's nodes, ordered
// by dependent node name and then by referenced name.
func (d *Document) Edges() []Edge {
	var edges []Edge
	for _, name := range d.NodeNames() {
		n := d.ExecutionDAG[name]
		if n == nil {
			continue
		}
		for _, ref := range n.References() {
			edges = append(edges, Edge{From: ref, To: name})
		}
	}
	return edges
}

// Ancestors returns roots plus every node they transitively reference.
func (d *Document) Ancestors(roots ...string) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[name]; ok {
			continue
		}
		n, ok := d.ExecutionDAG[name]
		if !ok {
			continue
		}
		seen[name] = struct{}{}
		if n != nil {
			stack = append(stack, n.References()...)
		}
	}
	return seen
}

// Parameters returns the names of every parameter node in the transitive
// closure of root.
func (d *Document) Parameters(root string) map[string]struct{} {
	params := make(map[string]struct{})
	for name := range d.Ancestors(root) {
		if n := d.ExecutionDAG[name]; n != nil {
			n.parameters(params)
		}
	}
	return params
}

// BuildLevels uses Kahn's algorithm to group nodes by dependency level.
// Nodes within the same level do not depend on each other and are sorted
// by name. Edges naming nodes outside names are ignored. A cycle yields a
// DAG_CYCLE error listing the nodes that could not be ordered.
func BuildLevels(names []string, edges []Edge) ([][]string, error) {
	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string) // from -> [to...]

	for _, name := range names {
		inDegree[name] = 0
	}
	for _, e := range edges {
		if _, ok := inDegree[e.From]; !ok {
			continue
		}
		if _, ok := inDegree[e.To]; !ok {
			continue
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	// Collect nodes with no incoming edges (level 0)
	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var levels [][]string
	visited := 0

	for len(queue) > 0 {
		sort.Strings(queue)
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(inDegree) {
		var stuck []string
		for name, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, errors.DAGCycle(stuck)
	}

	return levels, nil
}
