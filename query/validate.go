package query

import (
	"go.uber.org/multierr"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

var nodeTypeNames = []string{
	string(TypeCall), string(TypeSelect), string(TypeKeys),
	string(TypeVariable), string(TypeParameter), string(TypeLiteral),
}

// Validate checks doc against the structural contract and returns a single
// SCHEMA_VALIDATION error listing every violation. doc is not modified.
func Validate(doc *Document) error {
	if doc == nil {
		return errors.SchemaValidation("document is required")
	}

	err := validation.Struct(doc)

	v := validation.New().At("execution_dag")
	for _, name := range doc.NodeNames() {
		checkNode(v.At(name), doc.ExecutionDAG[name])
	}
	err = multierr.Append(err, v.Err())

	if err != nil {
		return errors.SchemaValidation(validation.Messages(err)...)
	}
	return nil
}

func checkNode(v *validation.Validator, n *Node) {
	if n == nil {
		v.Addf("", "is required")
		return
	}
	v.OneOf("type", string(n.Type), nodeTypeNames)

	switch n.Type {
	case TypeCall:
		v.Required("function", n.Function)
	case TypeSelect:
		v.Check(n.Source != nil, "source", "is required")
		v.Check(len(n.Joins) > 0, "joins", "is required")
		v.Required("join_path", n.JoinPath)
	case TypeKeys:
		v.Required("function", n.Function)
		v.Check(n.Source != nil, "source", "is required")
		v.Check(len(n.Scope) > 0, "scope", "is required")
		for _, f := range n.Scope {
			_, fixed := n.Dimensions[f]
			if n.Path == "" && n.Paths[f] == "" && !fixed {
				v.Addf("path", "no path or dimension for scope field %s", f)
			}
		}
		if _, ok := keys.ParseKind(string(n.Kind)); !ok {
			v.Addf("kind", "must be one of: internal, external")
		}
	case TypeVariable, TypeParameter:
		v.Required("name", n.Name)
	}

	for _, s := range n.slots() {
		if s.value.Node != nil {
			checkNode(v.At(s.label), s.value.Node)
		}
	}
}
