package preservation

import (
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/librarygate"
)

func TestSaveSkipsMarkedLibraryGlobals(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	lib := L.NewTable()
	librarygate.Mark(L, lib)
	L.SetGlobal("string", lib)
	L.SetGlobal("counter", lua.LNumber(42))

	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := Save(L, path); err != nil {
		t.Fatal(err)
	}

	L2 := lua.NewState()
	defer L2.Close()
	if err := Restore(L2, path); err != nil {
		t.Fatal(err)
	}
	if L2.GetGlobal("string") != lua.LNil {
		t.Fatalf("marked library global should not have been preserved")
	}
	if n, ok := L2.GetGlobal("counter").(lua.LNumber); !ok || float64(n) != 42 {
		t.Fatalf("counter = %v", L2.GetGlobal("counter"))
	}
}

func TestSaveRestoreRoundTripsNestedTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("name", lua.LString("widget"))
	inner := L.NewTable()
	inner.Append(lua.LNumber(1))
	inner.Append(lua.LNumber(2))
	tbl.RawSetString("tags", inner)
	L.SetGlobal("cfg", tbl)

	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := Save(L, path); err != nil {
		t.Fatal(err)
	}

	L2 := lua.NewState()
	defer L2.Close()
	if err := Restore(L2, path); err != nil {
		t.Fatal(err)
	}
	got, ok := L2.GetGlobal("cfg").(*lua.LTable)
	if !ok {
		t.Fatalf("cfg was not restored as a table")
	}
	if got.RawGetString("name").String() != "widget" {
		t.Fatalf("name = %v", got.RawGetString("name"))
	}
	tags, ok := got.RawGetString("tags").(*lua.LTable)
	if !ok || tags.Len() != 2 {
		t.Fatalf("tags = %v", got.RawGetString("tags"))
	}
}

func TestSaveWithoutPathIsNotConfigured(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	if err := Save(L, ""); err != ErrNotConfigured {
		t.Fatalf("got %v", err)
	}
}

func TestRestoreMissingFileIsNoop(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	path := filepath.Join(t.TempDir(), "does-not-exist.bin")
	if err := Restore(L, path); err != nil {
		t.Fatalf("missing snapshot should be a no-op, got %v", err)
	}
}
