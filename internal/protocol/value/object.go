package value

import "strings"

// Object is an ordered mapping of unique string keys to values.
type Object struct {
	keys []string
	data map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{data: make(map[string]Value)}
}

func (o *Object) Type() Type                { return TypeObject }
func (o *Object) AsBool() (bool, bool)      { return false, false }
func (o *Object) AsNumber() (float64, bool) { return 0, false }
func (o *Object) AsString() (string, bool)  { return "", false }
func (o *Object) AsObject() (*Object, bool) { return o, true }
func (o *Object) AsArray() (*Array, bool)   { return nil, false }

// Set stores v under key. A new key is appended to the iteration order; an
// existing key keeps its position and only its value changes.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null()
	}
	if o.data == nil {
		o.data = make(map[string]Value)
	}
	if _, ok := o.data[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.data[key] = v
}

// SetBool stores a boolean under key.
func (o *Object) SetBool(key string, v bool) { o.Set(key, Bool(v)) }

// SetNumber stores a number under key.
func (o *Object) SetNumber(key string, v float64) { o.Set(key, Number(v)) }

// SetInt stores an integer under key.
func (o *Object) SetInt(key string, v int) { o.Set(key, Int(v)) }

// SetString stores a string under key.
func (o *Object) SetString(key string, v string) { o.Set(key, String(v)) }

// Remove deletes key. It reports whether the key was present.
func (o *Object) Remove(key string) bool {
	if _, ok := o.data[key]; !ok {
		return false
	}
	delete(o.data, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.data[key]
	return v, ok
}

// GetBool returns the boolean stored under key. ok is false when the key is
// missing or holds another kind.
func (o *Object) GetBool(key string) (bool, bool) {
	v, ok := o.Get(key)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// GetNumber returns the number stored under key.
func (o *Object) GetNumber(key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// GetString returns the string stored under key.
func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetObject returns the object stored under key.
func (o *Object) GetObject(key string) (*Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	return v.AsObject()
}

// GetArray returns the array stored under key.
func (o *Object) GetArray(key string) (*Array, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	return v.AsArray()
}

// Keys returns the keys in iteration order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (o *Object) writeJSON(b *strings.Builder) {
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, k)
		b.WriteByte(':')
		o.data[k].writeJSON(b)
	}
	b.WriteByte('}')
}

// Array is a dense, 0-indexed sequence of values.
type Array struct {
	items []Value
}

// NewArray creates an empty array.
func NewArray() *Array {
	return &Array{}
}

func (a *Array) Type() Type                { return TypeArray }
func (a *Array) AsBool() (bool, bool)      { return false, false }
func (a *Array) AsNumber() (float64, bool) { return 0, false }
func (a *Array) AsString() (string, bool)  { return "", false }
func (a *Array) AsObject() (*Object, bool) { return nil, false }
func (a *Array) AsArray() (*Array, bool)   { return a, true }

// Push appends v.
func (a *Array) Push(v Value) {
	if v == nil {
		v = Null()
	}
	a.items = append(a.items, v)
}

// PushString appends a string.
func (a *Array) PushString(s string) { a.Push(String(s)) }

// PushNumber appends a number.
func (a *Array) PushNumber(f float64) { a.Push(Number(f)) }

// Get returns the element at index.
func (a *Array) Get(index int) (Value, bool) {
	if a == nil || index < 0 || index >= len(a.items) {
		return nil, false
	}
	return a.items[index], true
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

func (a *Array) writeJSON(b *strings.Builder) {
	b.WriteByte('[')
	for i, v := range a.items {
		if i > 0 {
			b.WriteByte(',')
		}
		v.writeJSON(b)
	}
	b.WriteByte(']')
}
