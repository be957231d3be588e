package extension

import (
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

// OpenCJSON registers the cjson-safe library's decode path. encode and its
// siblings are deliberately absent here — the library gate's denylist
// nils them out on every sandbox regardless, so there is nothing to wire
// for them; decode is implemented on tidwall/gjson, whose
// streaming parse model is a good fit for turning guest-supplied JSON text
// into Lua values (as opposed to the encode direction in internal/serialize,
// which walks a live Lua table graph gjson has no model for).
func OpenCJSON(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"decode": func(L *lua.LState) int {
			text := L.CheckString(1)
			if !gjson.Valid(text) {
				L.RaiseError("cjson: invalid JSON")
			}
			result := gjson.Parse(text)
			L.Push(gjsonToLua(L, result))
			return 1
		},
	})
	L.Push(mod)
	return 1
}

func gjsonToLua(L *lua.LState, r gjson.Result) lua.LValue {
	switch r.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.String:
		return lua.LString(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			tbl := L.NewTable()
			r.ForEach(func(_, value gjson.Result) bool {
				tbl.Append(gjsonToLua(L, value))
				return true
			})
			return tbl
		}
		tbl := L.NewTable()
		r.ForEach(func(key, value gjson.Result) bool {
			tbl.RawSetString(key.Str, gjsonToLua(L, value))
			return true
		})
		return tbl
	default:
		return lua.LNil
	}
}
