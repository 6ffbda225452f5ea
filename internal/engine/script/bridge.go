package script

import (
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// toValue converts a Lua value to a protocol value. Functions, userdata and
// cyclic references become strings; table keys are sorted.
func toValue(lv lua.LValue) value.Value {
	return toValueVisited(lv, make(map[*lua.LTable]bool))
}

func toValueVisited(lv lua.LValue, visited map[*lua.LTable]bool) value.Value {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.Null()
	case lua.LBool:
		return value.Bool(bool(v))
	case lua.LNumber:
		return value.Number(float64(v))
	case lua.LString:
		return value.String(string(v))
	case *lua.LTable:
		if visited[v] {
			return value.String("[circular]")
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToValue(v, visited)
	default:
		return value.String(lv.String())
	}
}

func tableToValue(t *lua.LTable, visited map[*lua.LTable]bool) value.Value {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := value.NewArray()
		for i := 1; i <= n; i++ {
			arr.Push(toValueVisited(t.RawGetInt(i), visited))
		}
		return arr
	}

	keys := make([]string, 0, count)
	fields := make(map[string]lua.LValue, count)
	t.ForEach(func(k, v lua.LValue) {
		key := k.String()
		keys = append(keys, key)
		fields[key] = v
	})
	sort.Strings(keys)

	obj := value.NewObject()
	for _, k := range keys {
		obj.Set(k, toValueVisited(fields[k], visited))
	}
	return obj
}

// messageText renders console arguments the way print does, with tables
// serialized.
func messageText(L *lua.LState) string {
	top := L.GetTop()
	var b []byte
	for i := 1; i <= top; i++ {
		if i > 1 {
			b = append(b, ' ')
		}
		switch v := L.Get(i).(type) {
		case lua.LString:
			b = append(b, string(v)...)
		case *lua.LTable:
			b = append(b, value.Serialize(toValue(v))...)
		default:
			b = append(b, v.String()...)
		}
	}
	return string(b)
}
