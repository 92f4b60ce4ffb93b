package logger

import (
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldDuration  = "duration_ms"

	// Query engine.
	FieldDocument = "document"
	FieldNode     = "node"
	FieldExport   = "export"
	FieldFunction = "function"

	// Reducers.
	FieldContext = "context"
	FieldReducer = "reducer"
	FieldKey     = "key"
)

// Fields pairs up alternating keys and values. Non-string keys and a
// trailing key without a value are skipped.
//
//	logger.Info("Dispatched", logger.Fields(logger.FieldReducer, id, "keys", n))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 1; i < len(kvs); i += 2 {
		if key, ok := kvs[i-1].(string); ok {
			m[key] = kvs[i]
		}
	}
	return m
}

// ErrorFields tags a failed operation.
func ErrorFields(op string, err error) map[string]any {
	return Fields(FieldOperation, op, FieldError, err.Error())
}

// DurationFields tags a timed operation with its milliseconds.
func DurationFields(op string, d time.Duration) map[string]any {
	return Fields(FieldOperation, op, FieldDuration, d.Milliseconds())
}
