package script

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// Errors for script execution.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotFunction is returned when a callback argument is not a function.
	ErrNotFunction = errors.New("not a function")
)

// errorText returns the message of a Lua error without its traceback.
func errorText(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
