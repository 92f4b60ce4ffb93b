package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
)

// AppError is the error type shared by every observer package.
type AppError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	// HTTPStatus is what a transport should answer with.
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any *AppError with the same code, so a bare
// &AppError{Code: ErrCodeDAGCycle} works as an errors.Is target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithCause sets the cause and returns e.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges details into e and returns e.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	maps.Copy(e.Details, details)
	return e
}

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	return e.WithDetails(map[string]any{key: value})
}

// New builds an error whose status and retryability follow from code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Retryable:  IsRetryableCode(code),
		HTTPStatus: HTTPStatus(code),
	}
}

// detailed is New with details attached.
func detailed(code ErrorCode, message string, kv ...any) *AppError {
	e := New(code, message)
	for i := 1; i < len(kv); i += 2 {
		e.WithDetail(kv[i-1].(string), kv[i])
	}
	return e
}

// SchemaValidation rejects a malformed query document. Each violation is
// listed in the message and under the "violations" detail.
func SchemaValidation(violations ...string) *AppError {
	msg := "query document is invalid"
	if len(violations) > 0 {
		msg += ": " + strings.Join(violations, "; ")
	}
	return detailed(ErrCodeSchemaValidation, msg, "violations", violations)
}

// DAGCycle rejects a document whose references loop through nodes.
func DAGCycle(nodes []string) *AppError {
	return detailed(ErrCodeDAGCycle, fmt.Sprintf("execution dag contains a cycle through %v", nodes), "nodes", nodes)
}

// UnknownFunction rejects a node naming an unregistered function.
func UnknownFunction(node, function string) *AppError {
	return detailed(ErrCodeUnknownFunction,
		fmt.Sprintf("node %q references unknown function %q", node, function),
		"node", node, "function", function)
}

// NotFound reports a missing document, export or reducer. id may be empty.
func NotFound(resource, id string) *AppError {
	e := detailed(ErrCodeNotFound, fmt.Sprintf("The requested %s was not found.", resource), "resource", resource)
	if id != "" {
		e.WithDetail("id", id)
	}
	return e
}

// AlreadyExists reports a duplicate registration.
func AlreadyExists(resource, id string) *AppError {
	return detailed(ErrCodeAlreadyExists, fmt.Sprintf("%s %q is already registered", resource, id),
		"resource", resource, "id", id)
}

// InvalidInput reports a bad argument. field may be empty.
func InvalidInput(field, reason string) *AppError {
	e := New(ErrCodeInvalidInput, "Invalid input: "+reason)
	e.Details = map[string]any{}
	if field != "" {
		e.Details["field"] = field
	}
	return e
}

// MissingParameter reports a required runtime parameter that was not
// supplied.
func MissingParameter(name string) *AppError {
	return detailed(ErrCodeMissingParameter, fmt.Sprintf("missing required parameter %q", name), "parameter", name)
}

// DAGExecution reports a collaborator failing inside a node.
func DAGExecution(function string, cause error) *AppError {
	return detailed(ErrCodeDAGExecution, fmt.Sprintf("function %q failed", function), "function", function).
		WithCause(cause)
}

// RateLimited reports a call rejected by a rate limit window.
func RateLimited(service, subject string) *AppError {
	return detailed(ErrCodeRateLimited,
		fmt.Sprintf("Too many calls to %s for %s. Please wait and try again.", service, subject),
		"service", service, "subject", subject)
}

// StateStoreUnavailable reports a failed state store operation.
func StateStoreUnavailable(op string, cause error) *AppError {
	return detailed(ErrCodeStateStoreUnavailable, fmt.Sprintf("state store %s failed", op), "operation", op).
		WithCause(cause)
}

// ServiceUnavailable reports an unreachable broker or upstream.
func ServiceUnavailable(service string) *AppError {
	return detailed(ErrCodeServiceUnavailable, service+" is temporarily unavailable", "service", service)
}

// Timeout reports a canceled or expired operation.
func Timeout(operation string) *AppError {
	return detailed(ErrCodeTimeout, "The request took too long or was canceled.", "operation", operation)
}

// Internal reports an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "An unexpected error occurred.").WithCause(cause)
}

// Wrap turns any error into an *AppError: AppErrors anywhere in the chain
// pass through, context errors become TIMEOUT and the rest INTERNAL_ERROR.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout("context").WithCause(err)
	}
	return Internal(err)
}
