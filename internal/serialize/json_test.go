package serialize

import (
	"encoding/json"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestEncodeTableJSONScalars(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("value", lua.LNumber(23))
	tbl.RawSetString("representation", lua.LString("B"))

	out, err := EncodeTableJSON(tbl)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	if got["representation"] != "B" {
		t.Fatalf("representation = %v", got["representation"])
	}
	if got["value"].(float64) != 23 {
		t.Fatalf("value = %v", got["value"])
	}
}

func TestEncodeTableJSONNestedArray(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	arr := L.NewTable()
	for _, v := range []int{1, 2, 3, 4, 5} {
		arr.Append(lua.LNumber(v))
	}
	root := L.NewTable()
	root.RawSetString("value", arr)
	root.RawSetString("representation", lua.LString("B"))

	out, err := EncodeTableJSON(root)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Value          []float64 `json:"value"`
		Representation string    `json:"representation"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Value) != 5 || got.Value[4] != 5 {
		t.Fatalf("value = %v", got.Value)
	}
}

func TestEncodeTableJSONDetectsCycle(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	a := L.NewTable()
	b := L.NewTable()
	a.RawSetString("b", b)
	b.RawSetString("a", a)

	if _, err := EncodeTableJSON(a); err != ErrCycle {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestEncodeTableJSONSharedRefIsNotACycle(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	shared := L.NewTable()
	shared.RawSetString("x", lua.LNumber(1))
	root := L.NewTable()
	root.RawSetString("left", shared)
	root.RawSetString("right", shared)

	if _, err := EncodeTableJSON(root); err != nil {
		t.Fatalf("shared (non-cyclic) reference should encode fine: %v", err)
	}
}
