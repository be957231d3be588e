// Package preservation implements saving and restoring a sandbox's guest
// global state across the sandbox's own process lifetime: every global not
// carrying the library gate's marker metatable is walked into a JSON-ish
// snapshot, zstd-compressed, and written atomically to a configured path.
package preservation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	lua "github.com/yuin/gopher-lua"
)

// ErrNotConfigured is returned by Save/Restore when no preservation path
// was configured for the sandbox.
var ErrNotConfigured = errors.New("preservation_path not configured")

// entry is one restartable global: a name/value pair that survived the
// marker-metatable filter.
type entry struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Save walks L's globals table, skips any table carrying the library gate's
// marker metatable (built-ins and required modules), and writes a
// zstd-compressed JSON snapshot of everything else to path.
func Save(L *lua.LState, path string) error {
	if path == "" {
		return ErrNotConfigured
	}

	globals := L.G.Global
	var entries []entry
	var walkErr error
	stopped := false
	globals.ForEach(func(k, v lua.LValue) {
		if stopped {
			return
		}
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if isMarked(v) {
			return
		}
		goVal, err := toGo(v)
		if err != nil {
			walkErr = err
			stopped = true
			return
		}
		if goVal == nil {
			return
		}
		entries = append(entries, entry{Name: string(name), Value: goVal})
	})
	if walkErr != nil {
		return walkErr
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("preservation encode: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("preservation compressor: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)

	return writeAtomic(path, compressed)
}

// Restore reads a snapshot previously written by Save and assigns each
// surviving entry back onto L as a global.
func Restore(L *lua.LState, path string) error {
	if path == "" {
		return ErrNotConfigured
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("preservation read: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("preservation decompressor: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("preservation decode: %w", err)
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("preservation unmarshal: %w", err)
	}

	for _, e := range entries {
		L.SetGlobal(e.Name, toLua(L, e.Value))
	}
	return nil
}

func isMarked(v lua.LValue) bool {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return false
	}
	return tbl.Metatable != nil && tbl.Metatable != lua.LNil
}

func toGo(v lua.LValue) (interface{}, error) {
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
		arrLen := t.Len()
		if arrLen > 0 {
			arr := make([]interface{}, 0, arrLen)
			for i := 1; i <= arrLen; i++ {
				elem, err := toGo(t.RawGetInt(i))
				if err != nil {
					return nil, err
				}
				arr = append(arr, elem)
			}
			return arr, nil
		}
		obj := make(map[string]interface{})
		t.ForEach(func(k, val lua.LValue) {
			ks, ok := k.(lua.LString)
			if !ok {
				return
			}
			elem, _ := toGo(val)
			obj[string(ks)] = elem
		})
		return obj, nil
	default:
		// Functions, userdata, threads: not restartable, dropped silently.
		return nil, nil
	}
}

func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case []interface{}:
		tbl := L.NewTable()
		for _, e := range t {
			tbl.Append(toLua(L, e))
		}
		return tbl
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, e := range t {
			tbl.RawSetString(k, toLua(L, e))
		}
		return tbl
	default:
		return lua.LNil
	}
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".preservation-*.tmp")
	if err != nil {
		return fmt.Errorf("preservation tempfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("preservation write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preservation close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preservation rename: %w", err)
	}
	return nil
}
