package dispatcher

import "errors"

// Dispatcher errors.
var (
	// ErrUnknownMethod indicates no handler is registered for a method.
	ErrUnknownMethod = errors.New("dispatcher: unknown method")

	// ErrInvalidParams indicates a command carried missing or mistyped params.
	ErrInvalidParams = errors.New("dispatcher: invalid params")

	// ErrInvalidMessage indicates a command could not be decoded.
	ErrInvalidMessage = errors.New("dispatcher: invalid message")

	// ErrPanic indicates the handler panicked.
	ErrPanic = errors.New("dispatcher: handler panic")
)

// Protocol error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrUnknownMethod):
		return CodeMethodNotFound
	case errors.Is(err, ErrInvalidParams):
		return CodeInvalidParams
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidRequest
	default:
		return CodeServerError
	}
}
