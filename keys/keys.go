package keys

import (
	"net/url"
	"sort"
	"strings"
)

// Field is an identity dimension a reducer's state may be partitioned by.
// The set is open: any upper-case name is a valid field.
type Field string

// Baseline fields.
const (
	Student  Field = "STUDENT"
	Class    Field = "CLASS"
	Resource Field = "RESOURCE"
)

// Kind distinguishes a reducer's private accumulator from its exposed value.
type Kind string

const (
	Internal Kind = "internal"
	External Kind = "external"
)

// ParseKind maps a document string to a Kind. Empty means External.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "", string(External):
		return External, true
	case string(Internal):
		return Internal, true
	default:
		return "", false
	}
}

// Scope is the set of fields a reducer's state is keyed by.
type Scope map[Field]struct{}

// NewScope builds a Scope from fields. Duplicates collapse.
func NewScope(fields ...Field) Scope {
	s := make(Scope, len(fields))
	for _, f := range fields {
		s[Field(strings.ToUpper(string(f)))] = struct{}{}
	}
	return s
}

// Has reports whether f is part of the scope.
func (s Scope) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Fields returns the scope's fields in canonical (lexicographic) order.
func (s Scope) Fields() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dimensions carries concrete identity values, e.g. {STUDENT: "s1"}.
type Dimensions map[Field]string

// Restrict returns only the dimensions inside scope.
func (d Dimensions) Restrict(scope Scope) Dimensions {
	out := make(Dimensions, len(scope))
	for f, v := range d {
		if scope.Has(f) {
			out[f] = v
		}
	}
	return out
}

// Build returns the state key for function under scope. It is pure and
// total: a scope field with no dimension value renders with an empty value.
// The function identity and values are query-escaped, so separators inside
// them cannot forge another key.
func Build(function string, scope Scope, dims Dimensions, kind Kind) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte(',')
	b.WriteString(url.QueryEscape(function))
	for _, f := range scope.Fields() {
		b.WriteByte(',')
		b.WriteString(string(f))
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(dims[f]))
	}
	return b.String()
}

// Pattern returns a glob matching every key of function and kind.
func Pattern(function string, kind Kind) string {
	return string(kind) + "," + url.QueryEscape(function) + ",*"
}

// Parse splits a key produced by Build back into its parts.
func Parse(key string) (function string, dims Dimensions, kind Kind, ok bool) {
	parts := strings.Split(key, ",")
	if len(parts) < 2 {
		return "", nil, "", false
	}
	kind, ok = ParseKind(parts[0])
	if !ok || parts[0] == "" {
		return "", nil, "", false
	}
	dims = make(Dimensions, len(parts)-2)
	for _, p := range parts[2:] {
		name, raw, found := strings.Cut(p, ":")
		if !found {
			return "", nil, "", false
		}
		v, err := url.QueryUnescape(raw)
		if err != nil {
			return "", nil, "", false
		}
		dims[Field(name)] = v
	}
	function, err := url.QueryUnescape(parts[1])
	if err != nil {
		return "", nil, "", false
	}
	return function, dims, kind, true
}
