// Package requireresolve implements the sandbox's require() builtin: a
// package.loaded cache with sentinel-based cycle detection, a registry of
// gated built-in libraries, and an external .lua module loader gated by a
// configured module root.
package requireresolve

import (
	"fmt"
	"path/filepath"
	"regexp"

	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/librarygate"
)

// maxPathLength bounds the constructed external module path.
const maxPathLength = 255

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Resolver implements require(name) against a fixed builtin registry and,
// when configured, a directory of external .lua modules.
type Resolver struct {
	L          *lua.LState
	ModuleRoot string // empty means external modules are disabled
	builtins   map[string]librarygate.Descriptor
	loaded     *lua.LTable
}

// New creates a Resolver bound to L. moduleRoot may be empty, which
// disables external module loading entirely.
func New(L *lua.LState, moduleRoot string) *Resolver {
	loaded := L.NewTable()
	return &Resolver{L: L, ModuleRoot: moduleRoot, builtins: builtins(), loaded: loaded}
}

// Loaded exposes the package.loaded-equivalent cache table, so a caller can
// seed or inspect it (e.g. the preservation layer skipping marked entries).
func (r *Resolver) Loaded() *lua.LTable {
	return r.loaded
}

// LGFunction returns the gopher-lua-callable require(name) implementation.
func (r *Resolver) LGFunction() lua.LGFunction {
	return r.require
}

func (r *Resolver) require(L *lua.LState) int {
	name := L.CheckString(1)

	// A cycle detected via the sentinel yields the sentinel itself, rather
	// than erroring: the nested require that triggered it gets LTrue back
	// the same as the top-level call would on a second require of a module
	// still being loaded.
	if cached := r.loaded.RawGetString(name); cached != lua.LNil {
		L.Push(cached)
		return 1
	}

	// Sentinel insertion breaks require-cycles: a nested require of the
	// same name observes LTrue above before this call completes.
	r.loaded.RawSetString(name, lua.LTrue)

	if d, ok := r.builtins[name]; ok {
		tbl := librarygate.Load(L, d)
		r.loaded.RawSetString(name, tbl)
		if name == "cjson" {
			L.SetGlobal("cjson", tbl)
		}
		L.Push(tbl)
		return 1
	}

	mod, err := r.loadExternal(L, name)
	if err != nil {
		r.loaded.RawSetString(name, lua.LNil)
		L.RaiseError("%s", err.Error())
	}
	librarygate.Mark(L, mod)
	r.loaded.RawSetString(name, mod)
	L.Push(mod)
	return 1
}

func (r *Resolver) loadExternal(L *lua.LState, name string) (*lua.LTable, error) {
	if r.ModuleRoot == "" {
		return nil, fmt.Errorf("external modules are disabled")
	}

	if !nameRE.MatchString(name) {
		return nil, fmt.Errorf("invalid module name: %s", name)
	}

	path := filepath.Join(r.ModuleRoot, name+".lua")
	if len(path) > maxPathLength {
		return nil, fmt.Errorf("require_path exceeded 255")
	}

	fn, err := L.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load module %s: %v", name, err)
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("error loading module %s: %v", name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		tbl = L.NewTable()
	}
	return tbl, nil
}
