package query

import (
	"bytes"
	"encoding/json"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
)

// NodeType tags the variant a Node holds.
type NodeType string

const (
	TypeCall      NodeType = "call"
	TypeSelect    NodeType = "select"
	TypeKeys      NodeType = "keys"
	TypeVariable  NodeType = "variable"
	TypeParameter NodeType = "parameter"
	TypeLiteral   NodeType = "literal"
)

var nodeTypes = map[NodeType]bool{
	TypeCall: true, TypeSelect: true, TypeKeys: true,
	TypeVariable: true, TypeParameter: true, TypeLiteral: true,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool { return nodeTypes[t] }

// Hoistable reports whether an inline node of this type is lifted into a
// named node by Flatten. Reference and literal nodes stay inline.
func (t NodeType) Hoistable() bool {
	return t == TypeCall || t == TypeSelect || t == TypeKeys
}

// Document is a query document.
type Document struct {
	ExecutionDAG map[string]*Node  `json:"execution_dag" yaml:"execution_dag" validate:"required,min=1"`
	Exports      map[string]Export `json:"exports" yaml:"exports" validate:"required,dive"`
}

// Export binds an externally fetchable name to a node.
type Export struct {
	Returns    string   `json:"returns" yaml:"returns" validate:"required"`
	Parameters []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Node is one step of the execution DAG. Which fields are meaningful
// depends on Type.
type Node struct {
	Type NodeType `json:"type" yaml:"type"`

	// call, keys
	Function string `json:"function,omitempty" yaml:"function,omitempty"`
	// call
	Args map[string]Value `json:"args,omitempty" yaml:"args,omitempty"`

	// select, keys
	Source *Value `json:"source,omitempty" yaml:"source,omitempty"`
	// select
	Joins    map[string]Value `json:"joins,omitempty" yaml:"joins,omitempty"`
	JoinPath string           `json:"join_path,omitempty" yaml:"join_path,omitempty"`
	Defaults map[string]any   `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// keys
	Scope      []keys.Field          `json:"scope,omitempty" yaml:"scope,omitempty"`
	Path       string                `json:"path,omitempty" yaml:"path,omitempty"`
	Paths      map[keys.Field]string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Dimensions map[keys.Field]Value  `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Kind       keys.Kind             `json:"kind,omitempty" yaml:"kind,omitempty"`
	As         string                `json:"as,omitempty" yaml:"as,omitempty"`

	// variable, parameter
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// parameter
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any  `json:"default,omitempty" yaml:"default,omitempty"`

	// literal
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
}

// Value is a node argument: either an inline node or a plain literal.
type Value struct {
	Node    *Node
	Literal any
}

// Ref returns a Value referring to the node called name.
func Ref(name string) Value {
	return Value{Node: &Node{Type: TypeVariable, Name: name}}
}

// Param returns a Value holding a parameter node.
func Param(name string, required bool) Value {
	return Value{Node: &Node{Type: TypeParameter, Name: name, Required: required}}
}

// Lit returns a Value holding a plain literal.
func Lit(v any) Value { return Value{Literal: v} }

// Inline returns a Value holding an inline node.
func Inline(n *Node) Value { return Value{Node: n} }

// RefName returns the referenced node name when v is a variable node.
func (v Value) RefName() (string, bool) {
	if v.Node != nil && v.Node.Type == TypeVariable {
		return v.Node.Name, true
	}
	return "", false
}

// MarshalJSON encodes the inline node or the literal.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Node != nil {
		return json.Marshal(v.Node)
	}
	return json.Marshal(v.Literal)
}

// UnmarshalJSON decodes an object whose "type" names a node type as a Node
// and anything else as a literal.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var probe struct {
			Type any `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return err
		}
		if t, ok := probe.Type.(string); ok && NodeType(t).Valid() {
			var n Node
			if err := json.Unmarshal(trimmed, &n); err != nil {
				return err
			}
			v.Node = &n
			return nil
		}
	}
	return json.Unmarshal(data, &v.Literal)
}

// UnmarshalYAML applies the same rule as UnmarshalJSON to YAML mappings.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	*v = Value{}
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if k.Value == "type" && val.Kind == yaml.ScalarNode && NodeType(val.Value).Valid() {
				var node Node
				if err := n.Decode(&node); err != nil {
					return err
				}
				v.Node = &node
				return nil
			}
		}
	}
	return n.Decode(&v.Literal)
}

// slot is an addressable argument position of a node.
type slot struct {
	label string
	value *Value
	store func(Value)
}

// slots lists every argument position of n in a fixed order: source, then
// args, joins and dimensions each sorted by name.
func (n *Node) slots() []slot {
	var out []slot
	if n.Source != nil {
		src := n.Source
		out = append(out, slot{label: "source", value: src, store: func(v Value) { *src = v }})
	}
	out = appendMapSlots(out, n.Args)
	out = appendMapSlots(out, n.Joins)
	if len(n.Dimensions) > 0 {
		fields := make([]keys.Field, 0, len(n.Dimensions))
		for f := range n.Dimensions {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
		for _, f := range fields {
			f := f
			v := n.Dimensions[f]
			dims := n.Dimensions
			out = append(out, slot{label: string(f), value: &v, store: func(nv Value) { dims[f] = nv }})
		}
	}
	return out
}

func appendMapSlots(out []slot, m map[string]Value) []slot {
	if len(m) == 0 {
		return out
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		k := k
		v := m[k]
		out = append(out, slot{label: k, value: &v, store: func(nv Value) { m[k] = nv }})
	}
	return out
}

// Values returns the node's argument values in slot order.
func (n *Node) Values() []Value {
	slots := n.slots()
	out := make([]Value, len(slots))
	for i, s := range slots {
		out[i] = *s.value
	}
	return out
}

// References returns the names of nodes n depends on directly, including
// references made from inline nodes nested in its arguments, sorted and
// without duplicates.
func (n *Node) References() []string {
	seen := make(map[string]struct{})
	n.collectRefs(seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (n *Node) collectRefs(seen map[string]struct{}) {
	if n.Type == TypeVariable {
		seen[n.Name] = struct{}{}
		return
	}
	for _, v := range n.Values() {
		if v.Node != nil {
			v.Node.collectRefs(seen)
		}
	}
}

// parameters adds the names of parameter nodes reachable inside n without
// following references.
func (n *Node) parameters(into map[string]struct{}) {
	if n.Type == TypeParameter {
		into[n.Name] = struct{}{}
		return
	}
	for _, v := range n.Values() {
		if v.Node != nil {
			v.Node.parameters(into)
		}
	}
}

// Clone returns a deep copy of n's structure. Literal payloads are shared.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Source != nil {
		src := n.Source.clone()
		c.Source = &src
	}
	c.Args = cloneValues(n.Args)
	c.Joins = cloneValues(n.Joins)
	if n.Dimensions != nil {
		c.Dimensions = make(map[keys.Field]Value, len(n.Dimensions))
		for k, v := range n.Dimensions {
			c.Dimensions[k] = v.clone()
		}
	}
	if n.Defaults != nil {
		c.Defaults = make(map[string]any, len(n.Defaults))
		for k, v := range n.Defaults {
			c.Defaults[k] = v
		}
	}
	if n.Paths != nil {
		c.Paths = make(map[keys.Field]string, len(n.Paths))
		for k, v := range n.Paths {
			c.Paths[k] = v
		}
	}
	if n.Scope != nil {
		c.Scope = make([]keys.Field, len(n.Scope))
		copy(c.Scope, n.Scope)
	}
	return &c
}

func (v Value) clone() Value {
	return Value{Node: v.Node.Clone(), Literal: v.Literal}
}

func cloneValues(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{}
	if d.ExecutionDAG != nil {
		out.ExecutionDAG = make(map[string]*Node, len(d.ExecutionDAG))
		for name, n := range d.ExecutionDAG {
			out.ExecutionDAG[name] = n.Clone()
		}
	}
	if d.Exports != nil {
		out.Exports = make(map[string]Export, len(d.Exports))
		for name, e := range d.Exports {
			if e.Parameters != nil {
				params := make([]string, len(e.Parameters))
				copy(params, e.Parameters)
				e.Parameters = params
			}
			out.Exports[name] = e
		}
	}
	return out
}

// NodeNames returns the sorted names of the document's nodes.
func (d *Document) NodeNames() []string {
	names := make([]string, 0, len(d.ExecutionDAG))
	for name := range d.ExecutionDAG {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportNames returns the sorted names of the document's exports.
func (d *Document) ExportNames() []string {
	names := make([]string, 0, len(d.Exports))
	for name := range d.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
