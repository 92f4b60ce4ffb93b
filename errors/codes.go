package errors

import "net/http"

// ErrorCode is the machine-readable kind of an AppError.
type ErrorCode string

// Admission codes reject a request before any node runs.
const (
	ErrCodeSchemaValidation ErrorCode = "SCHEMA_VALIDATION"
	ErrCodeDAGCycle         ErrorCode = "DAG_CYCLE"
	ErrCodeUnknownFunction  ErrorCode = "UNKNOWN_FUNCTION"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// Node codes are embedded in a node's result and never abort siblings.
const (
	ErrCodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrCodeDAGExecution     ErrorCode = "DAG_EXECUTION"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// Infrastructure codes.
const (
	ErrCodeStateStoreUnavailable ErrorCode = "STATE_STORE_UNAVAILABLE"
	ErrCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

type codeInfo struct {
	status    int
	retryable bool
}

var codeInfos = map[ErrorCode]codeInfo{
	ErrCodeSchemaValidation:      {http.StatusBadRequest, false},
	ErrCodeDAGCycle:              {http.StatusBadRequest, false},
	ErrCodeUnknownFunction:       {http.StatusBadRequest, false},
	ErrCodeNotFound:              {http.StatusNotFound, false},
	ErrCodeAlreadyExists:         {http.StatusConflict, false},
	ErrCodeInvalidInput:          {http.StatusBadRequest, false},
	ErrCodeMissingParameter:      {http.StatusBadRequest, false},
	ErrCodeDAGExecution:          {http.StatusBadGateway, true},
	ErrCodeRateLimited:           {http.StatusTooManyRequests, true},
	ErrCodeStateStoreUnavailable: {http.StatusServiceUnavailable, true},
	ErrCodeServiceUnavailable:    {http.StatusServiceUnavailable, true},
	ErrCodeTimeout:               {http.StatusGatewayTimeout, true},
	ErrCodeInternal:              {http.StatusInternalServerError, false},
}

// IsRetryableCode reports whether errors with code may succeed on retry.
func IsRetryableCode(code ErrorCode) bool { return codeInfos[code].retryable }

// HTTPStatus maps code to the status a transport should answer with.
// Unknown codes map to 500.
func HTTPStatus(code ErrorCode) int {
	if info, ok := codeInfos[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
