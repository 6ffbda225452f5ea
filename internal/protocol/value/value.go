// Package value implements the tagged JSON-like value tree used for every
// inspector protocol message and for stored protocol fields.
//
// A Value is one of Null, Boolean, Number, String, Object or Array. Objects
// keep their keys in insertion order; that order is significant for
// serialization. There is a single numeric kind (float64).
package value

import (
	"math"
	"strconv"
	"strings"
)

// Type identifies the kind of a Value.
type Type int

const (
	// TypeNull is the null value.
	TypeNull Type = iota
	// TypeBoolean is true or false.
	TypeBoolean
	// TypeNumber is a float64.
	TypeNumber
	// TypeString is a string.
	TypeString
	// TypeObject is an ordered string-keyed map.
	TypeObject
	// TypeArray is a dense sequence.
	TypeArray
)

// String returns a string representation of the type.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a node of a protocol value tree.
//
// The As* accessors never panic; they report false when the value is of a
// different kind.
type Value interface {
	Type() Type
	AsBool() (bool, bool)
	AsNumber() (float64, bool)
	AsString() (string, bool)
	AsObject() (*Object, bool)
	AsArray() (*Array, bool)

	writeJSON(b *strings.Builder)
}

// scalar provides the failing accessors shared by all non-container values.
type scalar struct{}

func (scalar) AsBool() (bool, bool)      { return false, false }
func (scalar) AsNumber() (float64, bool) { return 0, false }
func (scalar) AsString() (string, bool)  { return "", false }
func (scalar) AsObject() (*Object, bool) { return nil, false }
func (scalar) AsArray() (*Array, bool)   { return nil, false }

type nullValue struct{ scalar }

func (nullValue) Type() Type                   { return TypeNull }
func (nullValue) writeJSON(b *strings.Builder) { b.WriteString("null") }

type boolValue struct {
	scalar
	v bool
}

func (boolValue) Type() Type               { return TypeBoolean }
func (v boolValue) AsBool() (bool, bool) { return v.v, true }
func (v boolValue) writeJSON(b *strings.Builder) {
	if v.v {
		b.WriteString("true")
		return
	}
	b.WriteString("false")
}

type numberValue struct {
	scalar
	v float64
}

func (numberValue) Type() Type                    { return TypeNumber }
func (v numberValue) AsNumber() (float64, bool) { return v.v, true }
func (v numberValue) writeJSON(b *strings.Builder) {
	b.WriteString(formatNumber(v.v))
}

type stringValue struct {
	scalar
	v string
}

func (stringValue) Type() Type                  { return TypeString }
func (v stringValue) AsString() (string, bool) { return v.v, true }
func (v stringValue) writeJSON(b *strings.Builder) {
	writeString(b, v.v)
}

// Null returns the null value.
func Null() Value { return nullValue{} }

// Bool returns a boolean value.
func Bool(v bool) Value { return boolValue{v: v} }

// Number returns a numeric value.
func Number(v float64) Value { return numberValue{v: v} }

// Int returns a numeric value for an integer.
func Int(v int) Value { return numberValue{v: float64(v)} }

// String returns a string value.
func String(v string) Value { return stringValue{v: v} }

// IsNull reports whether v is nil or the null value.
func IsNull(v Value) bool {
	return v == nil || v.Type() == TypeNull
}

// Serialize renders v as canonical text. A nil Value renders as null.
func Serialize(v Value) string {
	var b strings.Builder
	if v == nil {
		b.WriteString("null")
		return b.String()
	}
	v.writeJSON(&b)
	return b.String()
}

// formatNumber renders numbers in plain decimal inside [1e-6, 1e21) and with
// an exponent outside it. Non-finite numbers have no textual form and render
// as null.
func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	if abs := math.Abs(f); f == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

// Equal reports whether a and b are structurally equal, including object key
// order.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return IsNull(a) && IsNull(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case TypeNull:
		return true
	case TypeBoolean:
		x, _ := a.AsBool()
		y, _ := b.AsBool()
		return x == y
	case TypeNumber:
		x, _ := a.AsNumber()
		y, _ := b.AsNumber()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case TypeString:
		x, _ := a.AsString()
		y, _ := b.AsString()
		return x == y
	case TypeObject:
		x, _ := a.AsObject()
		y, _ := b.AsObject()
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			if y.keys[i] != k || !Equal(x.data[k], y.data[k]) {
				return false
			}
		}
		return true
	case TypeArray:
		x, _ := a.AsArray()
		y, _ := b.AsArray()
		if x.Len() != y.Len() {
			return false
		}
		for i := range x.items {
			if !Equal(x.items[i], y.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}
