package query

import (
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Compile validates and flattens doc and checks its exports: each export
// must return an existing node, and each declared parameter must be used by
// a parameter node that export depends on.
func Compile(doc *Document) (*Document, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	flat, err := Flatten(doc)
	if err != nil {
		return nil, err
	}
	if err := checkExports(flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func checkExports(doc *Document) error {
	v := validation.New()
	for _, name := range doc.ExportNames() {
		e := doc.Exports[name]
		ev := v.At("exports." + name)
		if _, ok := doc.ExecutionDAG[e.Returns]; !ok {
			ev.Addf("returns", "unknown node %q", e.Returns)
			continue
		}
		used := doc.Parameters(e.Returns)
		for _, p := range e.Parameters {
			if _, ok := used[p]; !ok {
				ev.Addf("parameters", "%q is not used by node %q", p, e.Returns)
			}
		}
	}
	if err := v.Err(); err != nil {
		return errors.SchemaValidation(validation.Messages(err)...)
	}
	return nil
}
