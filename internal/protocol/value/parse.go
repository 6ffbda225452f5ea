package value

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrParse is returned (wrapped) for malformed input.
var ErrParse = errors.New("malformed protocol value")

// SyntaxError describes a parse failure.
type SyntaxError struct {
	// Input is a prefix of the rejected text, for diagnostics.
	Input string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v: %q", ErrParse, e.Input)
}

// Unwrap allows errors.Is(err, ErrParse).
func (e *SyntaxError) Unwrap() error { return ErrParse }

const maxErrorInput = 64

// Parse reads a value tree from text. Malformed input (unterminated strings,
// trailing garbage, invalid numbers, empty text) yields a *SyntaxError; it is
// never reported as a Null value.
func Parse(text string) (Value, error) {
	if !gjson.Valid(text) {
		in := text
		if len(in) > maxErrorInput {
			in = in[:maxErrorInput]
		}
		return nil, &SyntaxError{Input: in}
	}
	return fromResult(gjson.Parse(text)), nil
}

// ParseObject parses text and requires the top-level value to be an object.
func ParseObject(text string) (*Object, error) {
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("%w: top-level %s is not an object", ErrParse, v.Type())
	}
	return obj, nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			arr := NewArray()
			r.ForEach(func(_, item gjson.Result) bool {
				arr.Push(fromResult(item))
				return true
			})
			return arr
		}
		obj := NewObject()
		r.ForEach(func(key, item gjson.Result) bool {
			obj.Set(key.Str, fromResult(item))
			return true
		})
		return obj
	default:
		return Null()
	}
}
