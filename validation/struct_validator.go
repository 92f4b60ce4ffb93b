package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// structs is shared; validator.Validate caches struct metadata.
var structs = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return v
})

// fieldName reports a field by its json name so violations read like the
// document that caused them.
func fieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-", "":
		return snake(f.Name)
	}
	return name
}

// Struct checks s against its `validate` tags. Paths are relative to s:
// "exports[counts].returns" rather than "Document.exports[counts].returns".
func Struct(s any) error {
	err := structs().Struct(s)
	var fields validator.ValidationErrors
	if !stderrors.As(err, &fields) {
		if err != nil {
			return FieldError{Message: err.Error()}
		}
		return nil
	}

	errs := make([]error, len(fields))
	for i, fe := range fields {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		errs[i] = FieldError{Field: path, Message: describe(fe)}
	}
	return multierr.Combine(errs...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if k := fe.Kind(); k == reflect.Map || k == reflect.Slice {
			return "must have at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hostname_port":
		return "must be host:port"
	}
	return "fails " + fe.Tag()
}

// snake turns a Go field name into snake_case: JoinPath -> join_path.
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
