package value

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_SetPreservesInsertionOrder(t *testing.T) {
	obj := NewObject()
	obj.SetString("zeta", "z")
	obj.SetNumber("alpha", 1)
	obj.SetBool("mid", true)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())
	assert.Equal(t, `{"zeta":"z","alpha":1,"mid":true}`, Serialize(obj))
}

func TestObject_OverwriteKeepsPosition(t *testing.T) {
	obj := NewObject()
	obj.SetNumber("a", 1)
	obj.SetNumber("b", 2)
	obj.SetNumber("c", 3)
	obj.SetString("a", "again")

	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())
	s, ok := obj.GetString("a")
	require.True(t, ok)
	assert.Equal(t, "again", s)
	assert.Equal(t, `{"a":"again","b":2,"c":3}`, Serialize(obj))
}

func TestObject_TypedGetters(t *testing.T) {
	obj := NewObject()
	obj.SetNumber("n", 4.5)
	obj.SetString("s", "x")

	_, ok := obj.GetBool("n")
	assert.False(t, ok, "wrong type must report not ok")
	_, ok = obj.GetNumber("missing")
	assert.False(t, ok)
	n, ok := obj.GetNumber("n")
	assert.True(t, ok)
	assert.Equal(t, 4.5, n)
	_, ok = obj.GetObject("s")
	assert.False(t, ok)

	var nilObj *Object
	_, ok = nilObj.GetString("s")
	assert.False(t, ok)
}

func TestObject_Remove(t *testing.T) {
	obj := NewObject()
	obj.SetInt("a", 1)
	obj.SetInt("b", 2)
	assert.True(t, obj.Remove("a"))
	assert.False(t, obj.Remove("a"))
	obj.SetInt("a", 3)
	assert.Equal(t, []string{"b", "a"}, obj.Keys())
}

func TestArray_PushGetLen(t *testing.T) {
	arr := NewArray()
	arr.PushString("x")
	arr.PushNumber(2)
	arr.Push(nil)

	assert.Equal(t, 3, arr.Len())
	v, ok := arr.Get(1)
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 2.0, n)
	v, ok = arr.Get(2)
	require.True(t, ok)
	assert.True(t, IsNull(v))
	_, ok = arr.Get(3)
	assert.False(t, ok)
	_, ok = arr.Get(-1)
	assert.False(t, ok)
}

func TestSerialize_Escaping(t *testing.T) {
	got := Serialize(String("q\"b\\n\n\x01\t"))
	assert.Equal(t, `"q\"b\\n\n\u0001\t"`, got)
}

func TestSerialize_Numbers(t *testing.T) {
	cases := map[float64]string{
		0:            "0",
		-3:           "-3",
		1.5:          "1.5",
		123456789012: "123456789012",
		1e21:         "1e+21",
		0.000001:     "0.000001",
	}
	for in, want := range cases {
		assert.Equal(t, want, Serialize(Number(in)), "number %v", in)
	}
	assert.Equal(t, "null", Serialize(Number(math.Inf(1))))
	assert.Equal(t, "null", Serialize(Number(math.NaN())))
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		`"unterminated`,
		`{"a":1} trailing`,
		`{"a":01}`,
		`[1,]`,
		`1.`,
		`-`,
		`{"a" 1}`,
		`nul`,
	}
	for _, in := range inputs {
		v, err := Parse(in)
		assert.Nil(t, v, "input %q", in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, ErrParse), "input %q", in)
		var se *SyntaxError
		assert.True(t, errors.As(err, &se))
	}
}

func TestParse_NullIsNotFailure(t *testing.T) {
	v, err := Parse(" null ")
	require.NoError(t, err)
	assert.Equal(t, TypeNull, v.Type())
}

func TestParse_PreservesKeyOrder(t *testing.T) {
	obj, err := ParseObject(`{"z":1,"a":{"y":[true,false,null],"b":"s"},"m":-2.5e3}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())
	inner, ok := obj.GetObject("a")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "b"}, inner.Keys())
	m, _ := obj.GetNumber("m")
	assert.Equal(t, -2500.0, m)
}

func TestParseObject_RejectsNonObject(t *testing.T) {
	_, err := ParseObject(`[1]`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestRoundTrip(t *testing.T) {
	inner := NewArray()
	inner.PushString("with \"quotes\" and \\ and \u0007")
	inner.PushNumber(0.1)
	inner.Push(Bool(false))
	inner.Push(Null())
	obj := NewObject()
	obj.Set("list", inner)
	obj.SetString("unicode", "héllo ✓")
	obj.Set("empty", NewObject())
	obj.Set("nested", NewArray())
	obj.SetNumber("big", 9007199254740991)

	first := Serialize(obj)
	parsed, err := Parse(first)
	require.NoError(t, err)
	assert.Equal(t, first, Serialize(parsed))
	assert.True(t, Equal(obj, parsed))
}

func TestEqual_OrderMatters(t *testing.T) {
	a := NewObject()
	a.SetInt("x", 1)
	a.SetInt("y", 2)
	b := NewObject()
	b.SetInt("y", 2)
	b.SetInt("x", 1)
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(nil, Null()))
}
