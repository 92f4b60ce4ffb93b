package errors

import (
	stderrors "errors"
)

// Body is the client-facing form of an AppError. The cause is kept
// server-side.
type Body struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Envelope nests a Body under "error", the document the observer writes
// when it rejects a request.
type Envelope struct {
	Error Body `json:"error"`
}

// Envelope renders e for a client.
func (e *AppError) Envelope() Envelope {
	return Envelope{Error: Body{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	ok := stderrors.As(err, &target)
	return target, ok
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
