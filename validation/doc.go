// Package validation collects field-level violations from struct tags and
// from programmatic checks into a single error.
//
// # Struct Tag Validation
//
//	type Export struct {
//	    Returns string `json:"returns" validate:"required"`
//	}
//	err := validation.Struct(doc)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("execution_dag.a.function", node.Function)
//	err := v.Err()
//
// Both forms return nil or a multierr combination of FieldError values,
// so they can be merged with multierr.Append and listed with Messages.
package validation
