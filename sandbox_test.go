package scriptbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/quota"
	"scriptbox/internal/testhelper"
)

func readScript(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "scripts", name))
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestLifecycleUninitializedToTerminated(t *testing.T) {
	sb := New(Config{}, nil)
	if sb.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", sb.State())
	}
	if err := sb.Init(`function run() end`); err != nil {
		t.Fatal(err)
	}
	if sb.State() != StateRunning {
		t.Fatalf("expected running, got %s", sb.State())
	}
	if err := sb.Terminate(); err != nil {
		t.Fatal(err)
	}
	if sb.State() != StateTerminated {
		t.Fatalf("expected terminated, got %s", sb.State())
	}
	if err := sb.Init(`function run() end`); err == nil {
		t.Fatal("expected re-init after terminate to fail")
	}
}

func TestScenarioTypedScalarExtraction(t *testing.T) {
	sb := New(Config{OutputLimit: 4096}, nil)
	if err := sb.Init(readScript(t, "scalar_extraction.lua")); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()
	if _, err := sb.CallFunction(nil, "run"); err != nil {
		t.Fatal(err)
	}
	got := string(sb.Output())
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("expected trailing newline, got %q", got)
	}
	if !strings.Contains(got, `"value":23`) || !strings.Contains(got, `"representation":"B"`) {
		t.Fatalf("got %q", got)
	}
}

func TestScenarioTimestampNormalization(t *testing.T) {
	sb := New(Config{OutputLimit: 4096}, nil)
	if err := sb.Init(readScript(t, "timestamp_normalization.lua")); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()
	if _, err := sb.CallFunction(nil, "run"); err != nil {
		t.Fatal(err)
	}
	got := string(sb.Output())
	if !strings.Contains(got, `"msec":1391794831755000000`) {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, `"iso8601":1392050801000000000`) {
		t.Fatalf("got %q", got)
	}
}

func TestScenarioMultiValuedField(t *testing.T) {
	sb := New(Config{OutputLimit: 4096}, nil)
	if err := sb.Init(readScript(t, "multi_valued_field.lua")); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()
	if _, err := sb.CallFunction(nil, "run"); err != nil {
		t.Fatal(err)
	}
	got := string(sb.Output())
	if !strings.Contains(got, `"value":[1,2,3,4,5]`) {
		t.Fatalf("got %q", got)
	}
}

func TestScenarioRequireGate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mod.lua"), []byte(`
		local M = {}
		function M.hello() return "hi" end
		return M
	`), 0o644); err != nil {
		t.Fatal(err)
	}

	sbNoPath := New(Config{OutputLimit: 4096}, nil)
	if err := sbNoPath.Init(readScript(t, "require_gate.lua")); err != nil {
		t.Fatal(err)
	}
	defer sbNoPath.Terminate()
	results, err := sbNoPath.CallFunction(nil, "try_external")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 || results[0] != lua.LFalse {
		t.Fatalf("expected pcall to report failure, got %v", results)
	}
	if !strings.Contains(lua.LVAsString(results[1]), "external modules are disabled") {
		t.Fatalf("got %v", results[1])
	}

	sbWithPath := New(Config{OutputLimit: 4096, ModuleRoot: dir}, nil)
	if err := sbWithPath.Init(readScript(t, "require_gate.lua")); err != nil {
		t.Fatal(err)
	}
	defer sbWithPath.Terminate()
	results, err = sbWithPath.CallFunction(nil, "require_mod")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || lua.LVAsString(results[0]) != "hi" {
		t.Fatalf("got %v", results)
	}
}

func TestScenarioDeniedOSSymbol(t *testing.T) {
	sb := New(Config{OutputLimit: 4096}, nil)
	if err := sb.Init(readScript(t, "denied_os_symbol.lua")); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()

	_, err := sb.CallFunction(nil, "run")
	if err == nil {
		t.Fatal("expected an error calling a nil os.execute")
	}
	if sb.State() != StateRunning {
		t.Fatalf("sandbox should survive a guest error, state=%s", sb.State())
	}
}

func TestScenarioOutputOverflow(t *testing.T) {
	sb := New(Config{OutputLimit: 64}, nil)
	if err := sb.Init(readScript(t, "output_overflow.lua")); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()

	_, err := sb.CallFunction(nil, "run")
	if err == nil {
		t.Fatal("expected output_limit exceeded")
	}
	if !strings.Contains(err.Error(), "output_limit exceeded") {
		t.Fatalf("got %v", err)
	}
	if !Is(sb.LastError(), KindQuotaExceeded) {
		t.Fatalf("expected KindQuotaExceeded, got %v", sb.LastError())
	}
	if len(sb.Output()) > 64 {
		t.Fatalf("output exceeded ceiling: %d bytes", len(sb.Output()))
	}
}

func TestOutputBufferHonorsSharedAccountantAcrossResets(t *testing.T) {
	s := testhelper.New(t, 16)
	s.RequireNoError(s.Buf.AppendStr("hello"), "append within ceiling")
	s.Acct.Set(quota.Output, uint64(s.Buf.Len()))
	if s.Acct.Peek(quota.Output, quota.Current) != 5 {
		t.Fatalf("current = %d", s.Acct.Peek(quota.Output, quota.Current))
	}
	s.Reset()
	if s.Buf.Len() != 0 {
		t.Fatalf("expected buffer reset, len=%d", s.Buf.Len())
	}
	if s.Acct.Peek(quota.Output, quota.Current) != 0 {
		t.Fatalf("expected current reset to 0")
	}
	if s.Acct.Peek(quota.Output, quota.Maximum) != 5 {
		t.Fatalf("expected maximum to survive reset, got %d", s.Acct.Peek(quota.Output, quota.Maximum))
	}
}

func TestInvokeCallsProcessWithIntegerArgAndStatus(t *testing.T) {
	sb := New(Config{OutputLimit: 4096}, nil)
	if err := sb.Init(`
		function process(arg)
			output({received = arg})
			return arg * 2
		end
	`); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()

	status, err := sb.Invoke(nil, 21)
	if err != nil {
		t.Fatal(err)
	}
	if status != 42 {
		t.Fatalf("expected status 42, got %d", status)
	}
	if !strings.Contains(string(sb.Output()), `"received":21`) {
		t.Fatalf("got %q", sb.Output())
	}
}

func TestInstructionLimitTripsWithoutTerminatingHost(t *testing.T) {
	sb := New(Config{InstructionLimit: 50}, nil)
	if err := sb.Init(`
		function spin()
			local i = 0
			while true do i = i + 1 end
		end
	`); err != nil {
		t.Fatal(err)
	}
	defer sb.Terminate()

	_, err := sb.CallFunction(nil, "spin")
	if err == nil {
		t.Fatal("expected instruction_limit exceeded")
	}
	if !Is(sb.LastError(), KindQuotaExceeded) {
		t.Fatalf("expected KindQuotaExceeded, got %v", sb.LastError())
	}
	if sb.State() != StateRunning {
		t.Fatalf("sandbox should remain usable after a tripped instruction ceiling, state=%s", sb.State())
	}
}
