// Package dispatcher routes inbound protocol commands to their handlers.
//
// Commands arrive as serialized objects of the form
//
//	{"id": 7, "method": "DOM.getChildNodes", "params": {"nodeId": 3}}
//
// and every command produces exactly one response carrying the same id:
//
//	{"id": 7, "result": {...}}
//	{"id": 7, "error": {"code": -32602, "message": "..."}}
//
// # Registration
//
// Handlers are registered once, by exact method name, before the first
// command is dispatched. The table is static: there is no reflection and no
// prefix routing. Registering the same method twice is a programming error
// and panics.
//
//	reg := dispatcher.NewRegistry()
//	reg.Register("Console.clearMessages", func(ctx context.Context, params *value.Object) (*value.Object, error) {
//	    ctrl.ClearMessages()
//	    return nil, nil
//	})
//
// # Errors
//
// Handler errors never abort the connection. They are reported in the
// response for the failing command only. Errors wrapping ErrInvalidParams or
// ErrUnknownMethod get their own error codes; everything else is reported as
// a server error.
//
// # Threading
//
// Dispatch runs the handler on the calling goroutine. Callers that drive a
// single-threaded engine must call Dispatch from the engine goroutine.
package dispatcher
