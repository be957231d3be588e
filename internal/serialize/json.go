package serialize

import (
	"encoding/json"
	"errors"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// ErrCycle is returned when a table graph being JSON-encoded contains a
// cycle: encoding detects cycles and reports an error rather than recursing
// forever.
var ErrCycle = errors.New("table contains a cycle")

// EncodeTableJSON walks tbl (and any nested tables) into a Go value tree
// and hands it to encoding/json for final byte production — see DESIGN.md
// for why encoding/json, not gjson/sjson, is used for this direction.
//
// The cycle-detection scratch is a plain Go map with a starting capacity of
// 64 identity-keyed entries; Go's map implementation grows it as needed.
// The scratch has no explicit free: it is a local value the garbage
// collector reclaims on every return path.
func EncodeTableJSON(tbl *lua.LTable) ([]byte, error) {
	visited := make(map[*lua.LTable]bool, 64)
	tree, err := luaToGo(tbl, visited)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func luaToGo(v lua.LValue, visited map[*lua.LTable]bool) (interface{}, error) {
	switch t := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(t), nil
	case lua.LNumber:
		return float64(t), nil
	case lua.LString:
		return string(t), nil
	case *lua.LTable:
		return tableToGo(t, visited)
	default:
		// Extension userdata, functions, threads: not JSON-representable,
		// so a nested value of these types is encoded as JSON null.
		return nil, nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) (interface{}, error) {
	if visited[t] {
		return nil, ErrCycle
	}
	visited[t] = true
	defer delete(visited, t)

	arrLen := t.Len()
	extra := false
	t.ForEach(func(k, _ lua.LValue) {
		if n, ok := k.(lua.LNumber); ok {
			i := int(n)
			if float64(i) == float64(n) && i >= 1 && i <= arrLen {
				return
			}
		}
		extra = true
	})

	if arrLen > 0 && !extra {
		arr := make([]interface{}, arrLen)
		for i := 1; i <= arrLen; i++ {
			elem, err := luaToGo(t.RawGetInt(i), visited)
			if err != nil {
				return nil, err
			}
			arr[i-1] = elem
		}
		return arr, nil
	}

	obj := make(map[string]interface{})
	var ferr error
	stopped := false
	t.ForEach(func(k, val lua.LValue) {
		if stopped {
			return
		}
		elem, err := luaToGo(val, visited)
		if err != nil {
			ferr = err
			stopped = true
			return
		}
		obj[keyString(k)] = elem
	})
	if ferr != nil {
		return nil, ferr
	}
	return obj, nil
}

func keyString(k lua.LValue) string {
	switch v := k.(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	default:
		return k.String()
	}
}
