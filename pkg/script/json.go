package script

import (
	"fmt"
	"math"
	"sort"

	"github.com/joeydtaylor/steeze-lua/pkg/codec"
	lua "github.com/yuin/gopher-lua"
)

// jsonLoader backs require("json") with encode/decode.
func jsonLoader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"encode": jsonEncode,
		"decode": jsonDecode,
	})
	L.Push(mod)
	return 1
}

func jsonEncode(L *lua.LState) int {
	v, err := ToGo(L.CheckAny(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	b, err := codec.JSON.Marshal(v)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LString(b))
	return 1
}

func jsonDecode(L *lua.LState) int {
	var v any
	if err := codec.JSON.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(FromGo(L, v))
	return 1
}

// ToGo converts a Lua value into plain Go values. Tables with only keys
// 1..n become slices, other tables become maps keyed by string. Empty
// tables encode as objects.
func ToGo(v lua.LValue) (any, error) {
	return toGo(v, 0)
}

func toGo(v lua.LValue, depth int) (any, error) {
	if depth > 64 {
		return nil, fmt.Errorf("table nesting too deep")
	}
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("cannot encode %v", f)
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		if n := v.MaxN(); n > 0 && countKeys(v) == n {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				item, err := toGo(v.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr[i-1] = item
			}
			return arr, nil
		}
		m := make(map[string]any)
		var err error
		v.ForEach(func(k, item lua.LValue) {
			if err != nil {
				return
			}
			var key string
			switch k := k.(type) {
			case lua.LString:
				key = string(k)
			case lua.LNumber:
				key = k.String()
			default:
				err = fmt.Errorf("unsupported key type %s", k.Type())
				return
			}
			m[key], err = toGo(item, depth+1)
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", v.Type())
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}

// FromGo converts decoded JSON (or any plain Go value) into Lua values.
func FromGo(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case []string:
		t := L.CreateTable(len(v), 0)
		for _, s := range v {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.CreateTable(len(v), 0)
		for i, item := range v {
			t.RawSetInt(i+1, FromGo(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, FromGo(L, v[k]))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
