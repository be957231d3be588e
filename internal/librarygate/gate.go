// Package librarygate decides which library surface is exposed to guest
// code: it loads individual libraries into the engine, strips denied
// entries, and tags each library table with an empty marker metatable so a
// preservation layer can recognize "this is built-in, not guest data."
package librarygate

import lua "github.com/yuin/gopher-lua"

// Loader opens a library, leaving its table on the stack top (and, for
// libraries gopher-lua registers as globals directly, also installing it as
// a global under its own name) the same way lua.OpenString/OpenMath/etc do.
type Loader func(L *lua.LState) int

// Descriptor pairs a library name with its loader and the list of symbols
// to strip immediately after loading.
type Descriptor struct {
	Name     string
	Loader   Loader
	Denylist []string
}

// RootTable is the sentinel name meaning "the globals table itself".
const RootTable = ""

// Load invokes loader, then applies the denylist, then (for non-root
// tables) attaches an empty marker metatable. It returns the resulting
// table so the caller can cache it under package.loaded.
func Load(L *lua.LState, d Descriptor) *lua.LTable {
	d.Loader(L)
	top := L.Get(-1)
	L.Pop(1)

	if d.Name == RootTable {
		for _, sym := range d.Denylist {
			L.SetGlobal(sym, lua.LNil)
		}
		g, _ := top.(*lua.LTable)
		return g
	}

	tbl, ok := top.(*lua.LTable)
	if !ok {
		tbl = L.NewTable()
	}
	for _, sym := range d.Denylist {
		tbl.RawSetString(sym, lua.LNil)
	}
	Mark(L, tbl)
	return tbl
}

// Mark attaches a fresh empty table as tbl's metatable, the marker the
// preservation layer uses to recognize built-in library tables.
func Mark(L *lua.LState, tbl *lua.LTable) {
	tbl.Metatable = L.NewTable()
}

// IsMarked reports whether tbl carries a table metatable, as Mark attaches
// to built-in tables. The metatable's contents are not checked, so a guest
// table given any table metatable is reported as marked too.
func IsMarked(tbl *lua.LTable) bool {
	mt, ok := tbl.Metatable.(*lua.LTable)
	return ok && mt != nil
}
