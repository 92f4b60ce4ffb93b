package validation

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// FieldError is one violation, addressed by a dotted field path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validator accumulates violations from programmatic checks. Validators
// derived with At share their parent's violations.
type Validator struct {
	prefix     string
	violations *[]FieldError
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{violations: new([]FieldError)}
}

// At returns a validator that reports fields below path.
func (v *Validator) At(path string) *Validator {
	return &Validator{prefix: v.path(path), violations: v.violations}
}

func (v *Validator) path(field string) string {
	switch {
	case v.prefix == "":
		return field
	case field == "":
		return v.prefix
	}
	return v.prefix + "." + field
}

// Addf records a violation of field.
func (v *Validator) Addf(field, format string, args ...any) {
	*v.violations = append(*v.violations, FieldError{Field: v.path(field), Message: fmt.Sprintf(format, args...)})
}

// Check records message against field unless ok holds.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.Addf(field, "%s", message)
	}
	return v
}

// Required rejects blank strings.
func (v *Validator) Required(field, value string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", field, "is required")
}

// OneOf rejects values outside allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if !slices.Contains(allowed, value) {
		v.Addf(field, "must be one of: %s", strings.Join(allowed, ", "))
	}
	return v
}

// Min rejects values below floor.
func (v *Validator) Min(field string, value, floor int) *Validator {
	if value < floor {
		v.Addf(field, "must be at least %d", floor)
	}
	return v
}

// Violations lists what has been recorded so far.
func (v *Validator) Violations() []FieldError {
	return slices.Clone(*v.violations)
}

// Err combines the violations into one error, or returns nil.
func (v *Validator) Err() error {
	errs := make([]error, len(*v.violations))
	for i, fe := range *v.violations {
		errs[i] = fe
	}
	return multierr.Combine(errs...)
}

// Messages splits a combined error into one line per violation.
func Messages(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}
