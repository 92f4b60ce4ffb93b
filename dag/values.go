package dag

import (
	"fmt"
	"reflect"

	"github.com/Jeffail/gabs/v2"

	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// toIterator adapts a node result to a stream. Slices and arrays are
// streamed in order and nil is an empty stream.
func toIterator(v any) (stream.Iterator[any], error) {
	switch t := v.(type) {
	case nil:
		return stream.FromSlice[any](nil), nil
	case stream.Iterator[any]:
		return t, nil
	case []any:
		return stream.FromSlice(t), nil
	case []map[string]any:
		items := make([]any, len(t))
		for i, m := range t {
			items[i] = m
		}
		return stream.FromSlice(items), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a sequence, got %T", v)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return stream.FromSlice(items), nil
}

// lookup reads the value at a dotted path inside item. An empty path
// addresses the item itself.
func lookup(item any, path string) (any, bool) {
	if path == "" {
		return item, item != nil
	}
	g := gabs.Wrap(item)
	if !g.ExistsP(path) {
		return nil, false
	}
	return g.Path(path).Data(), true
}

// asObject returns item as a JSON object.
func asObject(item any) (map[string]any, bool) {
	switch m := item.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	}
	return nil, false
}

func copyObject(m map[string]any, extra int) map[string]any {
	out := make(map[string]any, len(m)+extra)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// scalarString renders a dimension or join value. nil renders empty.
func scalarString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
