package serialize

import (
	"strconv"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/outputbuf"
	"scriptbox/internal/quota"
)

func newDispatcherForTest(maxOutput int) (*lua.LState, *outputbuf.Buffer, *quota.Accountant, *string) {
	buf := outputbuf.New(maxOutput)
	acct := quota.New()
	acct.SetLimit(quota.Output, uint64(maxOutput))
	lastErr := new(string)
	d := New(buf, acct, func(msg string) { *lastErr = msg })
	L := lua.NewState()
	L.SetGlobal("output", L.NewFunction(d.LGFunction()))
	return L, buf, acct, lastErr
}

func TestOutputScalarsConcatenateInArgumentOrder(t *testing.T) {
	L, buf, _, _ := newDispatcherForTest(0)
	defer L.Close()
	if err := L.DoString(`output("hello", " ", nil, " ", true, " ", false)`); err != nil {
		t.Fatal(err)
	}
	want := "hello" + " " + "nil" + " " + "true" + " " + "false"
	if got := string(buf.Bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputNumberRoundTrips(t *testing.T) {
	L, buf, _, _ := newDispatcherForTest(0)
	defer L.Close()
	if err := L.DoString(`output(1391794831.755)`); err != nil {
		t.Fatal(err)
	}
	got := string(buf.Bytes())
	v, err := strconv.ParseFloat(got, 64)
	if err != nil {
		t.Fatalf("not a parseable number: %q", got)
	}
	if v != 1391794831.755 {
		t.Fatalf("round trip mismatch: %v", v)
	}
}

func TestOutputTableEncodesJSONWithNewline(t *testing.T) {
	L, buf, _, _ := newDispatcherForTest(0)
	defer L.Close()
	if err := L.DoString(`output({value=23, representation="B"})`); err != nil {
		t.Fatal(err)
	}
	got := string(buf.Bytes())
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("expected trailing newline, got %q", got)
	}
	if !strings.Contains(got, `"value":23`) {
		t.Fatalf("got %q", got)
	}
}

func TestOutputOverflowPreservesPartialOutput(t *testing.T) {
	L, buf, _, lastErr := newDispatcherForTest(8)
	defer L.Close()
	err := L.DoString(`
		for i=1,1000 do
			output("x")
		end
	`)
	if err == nil {
		t.Fatal("expected output_limit exceeded error")
	}
	if !strings.Contains(err.Error(), "output_limit exceeded") {
		t.Fatalf("got %v", err)
	}
	if len(buf.Bytes()) > 8 {
		t.Fatalf("output exceeded ceiling: %d bytes", len(buf.Bytes()))
	}
	if got := string(buf.Bytes()); got != strings.Repeat("x", 8) {
		t.Fatalf("partial output not preserved, got %q", got)
	}
	_ = lastErr
}
