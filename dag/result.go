package dag

import (
	stderrors "errors"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// NodeError is stored as the result of a node that failed, directly or
// through one of its dependencies. It is what an export resolves to when
// its node failed.
type NodeError struct {
	Message    string           `json:"error"`
	Code       errors.ErrorCode `json:"code,omitempty"`
	Function   string           `json:"function"`
	Provenance []string         `json:"error_provenance"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Error implements error so a NodeError can travel through streams and
// collaborator calls.
func (e *NodeError) Error() string { return e.Message }

// through returns a copy of e with node appended to the provenance.
func (e *NodeError) through(node string) *NodeError {
	c := *e
	c.Provenance = make([]string, len(e.Provenance), len(e.Provenance)+1)
	copy(c.Provenance, e.Provenance)
	c.Provenance = append(c.Provenance, node)
	return &c
}

func newNodeError(node, function string, err error, now time.Time) *NodeError {
	code := errors.ErrCodeDAGExecution
	if appErr, ok := errors.AsAppError(err); ok {
		code = appErr.Code
	}
	return &NodeError{
		Message:    err.Error(),
		Code:       code,
		Function:   function,
		Provenance: []string{node},
		Timestamp:  now.UTC(),
	}
}

// asNodeError extracts a NodeError carried by err.
func asNodeError(err error) (*NodeError, bool) {
	var ne *NodeError
	if stderrors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// Result holds the outcome of one execution.
type Result struct {
	// Exports maps each requested export to its value or *NodeError.
	Exports     map[string]any
	NodeResults map[string]NodeResult
	Duration    time.Duration
}

// NodeResult holds the outcome of a single node evaluation. Lazy nodes
// report "completed" once their stream is built; errors raised while it is
// drained surface in Exports.
type NodeResult struct {
	Name     string
	Status   string // "completed" | "failed"
	Duration time.Duration
	Error    *NodeError
}
