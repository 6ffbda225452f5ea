package inspector

import (
	"errors"
	"fmt"
)

// Inspector errors.
var (
	// ErrNotAttached indicates a command needs an attached frontend.
	ErrNotAttached = errors.New("no frontend attached")

	// ErrAlreadyAttached indicates Attach was called during a session.
	ErrAlreadyAttached = errors.New("frontend already attached")

	// ErrNoDocument indicates the page has not committed a document yet.
	ErrNoDocument = errors.New("no document loaded")

	// ErrNodeType indicates a command was applied to the wrong kind of node.
	ErrNodeType = errors.New("unexpected node type")

	// ErrNotSupported indicates the host did not supply a needed collaborator.
	ErrNotSupported = errors.New("operation not supported by host")

	// ErrDebuggerDisabled indicates a debugger command ran with the debugger off.
	ErrDebuggerDisabled = errors.New("debugger is not enabled")
)

// OperationError represents an error that occurred during a specific operation.
type OperationError struct {
	Op     string // Operation name (e.g., "setAttribute", "attach")
	Target string // Target of the operation (e.g., node id, breakpoint name)
	Err    error  // Underlying error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{
		Op:     op,
		Target: target,
		Err:    err,
	}
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
