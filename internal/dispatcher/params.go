package dispatcher

import (
	"fmt"
	"math"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// StringParam returns the required string param key.
func StringParam(params *value.Object, key string) (string, error) {
	s, ok := params.GetString(key)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

// OptionalString returns the string param key, or def when it is absent.
func OptionalString(params *value.Object, key, def string) (string, error) {
	if _, present := params.Get(key); !present {
		return def, nil
	}
	return StringParam(params, key)
}

// IntParam returns the required integral param key.
func IntParam(params *value.Object, key string) (int, error) {
	f, ok := params.GetNumber(key)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidParams, key)
	}
	return int(f), nil
}

// BoolParam returns the required boolean param key.
func BoolParam(params *value.Object, key string) (bool, error) {
	b, ok := params.GetBool(key)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean", ErrInvalidParams, key)
	}
	return b, nil
}

// OptionalBool returns the boolean param key, or def when it is absent.
func OptionalBool(params *value.Object, key string, def bool) (bool, error) {
	if _, present := params.Get(key); !present {
		return def, nil
	}
	return BoolParam(params, key)
}
