package extension

import (
	lua "github.com/yuin/gopher-lua"
	"google.golang.org/protobuf/encoding/protowire"
)

// pb is registered to its invocation contract only: schema-aware message
// encode/decode is out of scope. What's exposed is the raw wire-format
// primitive pair a guest script can build a minimal length-delimited record
// with, backed by protobuf's own varint/wire helpers rather than a
// hand-rolled varint implementation.

// OpenPB registers `pb.encode_varint(n)`, `pb.decode_varint(bytes)` and
// `pb.encode_field(fieldnum, str)` / `pb.decode_field(bytes)` — the wire
// primitives, not a schema compiler.
func OpenPB(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"encode_varint": func(L *lua.LState) int {
			n := uint64(L.CheckInt64(1))
			buf := protowire.AppendVarint(nil, n)
			L.Push(lua.LString(buf))
			return 1
		},
		"decode_varint": func(L *lua.LState) int {
			data := []byte(L.CheckString(1))
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				L.RaiseError("pb: invalid varint")
			}
			L.Push(lua.LNumber(v))
			L.Push(lua.LNumber(n))
			return 2
		},
		"encode_field": func(L *lua.LState) int {
			fieldNum := protowire.Number(L.CheckInt(1))
			value := L.CheckString(2)
			buf := protowire.AppendTag(nil, fieldNum, protowire.BytesType)
			buf = protowire.AppendString(buf, value)
			L.Push(lua.LString(buf))
			return 1
		},
		"decode_field": func(L *lua.LState) int {
			data := []byte(L.CheckString(1))
			num, typ, tagLen := protowire.ConsumeTag(data)
			if tagLen < 0 {
				L.RaiseError("pb: invalid tag")
			}
			if typ != protowire.BytesType {
				L.RaiseError("pb: unsupported wire type")
			}
			value, valLen := protowire.ConsumeBytes(data[tagLen:])
			if valLen < 0 {
				L.RaiseError("pb: invalid length-delimited value")
			}
			L.Push(lua.LNumber(num))
			L.Push(lua.LString(value))
			L.Push(lua.LNumber(tagLen + valLen))
			return 3
		},
	})
	L.Push(mod)
	return 1
}
