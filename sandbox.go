// Package scriptbox embeds a gated Lua scripting sandbox: a single
// gopher-lua VM per Sandbox, wrapped with quota accounting, an instruction
// ceiling, a library gate restricting which symbols a guest script can
// reach, a require() resolver for built-in and external modules, and an
// output() dispatcher that serializes scalars, tables and extension
// userdata into an accumulating byte buffer.
package scriptbox

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"scriptbox/internal/instruction"
	"scriptbox/internal/librarygate"
	"scriptbox/internal/outputbuf"
	"scriptbox/internal/preservation"
	"scriptbox/internal/quota"
	"scriptbox/internal/requireresolve"
	"scriptbox/internal/serialize"
)

// Sandbox is a single-owner, single-goroutine Lua execution context. It is
// not safe for concurrent use: callers that need concurrency should run one
// Sandbox per goroutine.
type Sandbox struct {
	mu sync.Mutex

	id     string
	cfg    Config
	log    *zap.Logger
	state  State
	L      *lua.LState
	ticker *instruction.Ticker

	acct     *quota.Accountant
	buf      *outputbuf.Buffer
	resolver *requireresolve.Resolver

	lastErr  error
	memBase  uint64
	memAlive bool
}

// New constructs a Sandbox in StateUninitialized. logger may be nil, in
// which case a no-op logger is used.
func New(cfg Config, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	acct := quota.New()
	acct.SetLimit(quota.Memory, cfg.MemoryLimit)
	acct.SetLimit(quota.Instructions, cfg.InstructionLimit)
	acct.SetLimit(quota.Output, uint64(cfg.OutputLimit))

	return &Sandbox{
		id:     uuid.NewString(),
		cfg:    cfg,
		log:    logger,
		state:  StateUninitialized,
		acct:   acct,
		buf:    outputbuf.New(cfg.OutputLimit),
		ticker: instruction.NewTicker(nil, cfg.InstructionLimit),
	}
}

// ID returns the sandbox instance's unique identifier, useful for
// correlating log lines across multiple concurrently running sandboxes.
func (sb *Sandbox) ID() string {
	return sb.id
}

// State reports the sandbox's current lifecycle state.
func (sb *Sandbox) State() State {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.state
}

// LastError returns the most recent error recorded during Init or Invoke,
// or nil if none occurred.
func (sb *Sandbox) LastError() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.lastErr
}

// Output returns the bytes accumulated by output() calls so far.
func (sb *Sandbox) Output() []byte {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Bytes()
}

// Usage reports one (resource, metric) cell of the quota table, e.g.
// Usage(quota.Output, quota.Current) for bytes emitted so far.
func (sb *Sandbox) Usage(r quota.Resource, m quota.Metric) uint64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.acct.Peek(r, m)
}

// Stats is a snapshot of every quota cell, convenient for logging and
// preservation metadata.
type Stats struct {
	MemoryCurrent, MemoryMaximum, MemoryLimit       uint64
	InstructionsCurrent, InstructionsMaximum, InstructionsLimit uint64
	OutputCurrent, OutputMaximum, OutputLimit       uint64
}

// Stats snapshots every quota cell at once.
func (sb *Sandbox) Stats() Stats {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return Stats{
		MemoryCurrent:       sb.acct.Peek(quota.Memory, quota.Current),
		MemoryMaximum:       sb.acct.Peek(quota.Memory, quota.Maximum),
		MemoryLimit:         sb.acct.Peek(quota.Memory, quota.Limit),
		InstructionsCurrent: sb.acct.Peek(quota.Instructions, quota.Current),
		InstructionsMaximum: sb.acct.Peek(quota.Instructions, quota.Maximum),
		InstructionsLimit:   sb.acct.Peek(quota.Instructions, quota.Limit),
		OutputCurrent:       sb.acct.Peek(quota.Output, quota.Current),
		OutputMaximum:       sb.acct.Peek(quota.Output, quota.Maximum),
		OutputLimit:         sb.acct.Peek(quota.Output, quota.Limit),
	}
}

// Init loads the base library (with the sandbox's deny-listed globals
// removed), wires require()/output(), restores any preservation snapshot
// and compiles+runs source as the sandbox's top-level chunk. It may be
// called exactly once; calling it again returns an InvalidConfiguration
// error.
func (sb *Sandbox) Init(source string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.state != StateUninitialized {
		return newError(KindInvalidConfiguration, "sandbox already initialized (state=%s)", sb.state)
	}

	sb.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	sb.L.SetContext(sb.ticker)

	librarygate.Load(sb.L, requireresolve.BaseDescriptor())

	sb.resolver = requireresolve.New(sb.L, sb.cfg.ModuleRoot)
	sb.L.SetGlobal("require", sb.L.NewFunction(sb.resolver.LGFunction()))

	dispatcher := serialize.New(sb.buf, sb.acct, func(msg string) { sb.lastErr = newError(KindSerializerError, "%s", msg) })
	sb.L.SetGlobal("output", sb.L.NewFunction(dispatcher.LGFunction()))

	// write() signals "flush my output" to the host; the minimal core has
	// nothing to flush eagerly, so it's a no-op that simply has to exist.
	sb.L.SetGlobal("write", sb.L.NewFunction(func(L *lua.LState) int { return 0 }))

	if sb.cfg.PreservationPath != "" {
		if err := preservation.Restore(sb.L, sb.cfg.PreservationPath); err != nil {
			sb.lastErr = wrapError(err, KindInvalidConfiguration)
			sb.failInit()
			return sb.lastErr.(*Error)
		}
	}

	sb.beginMemSample()
	if err := sb.L.DoString(source); err != nil {
		sb.lastErr = classifyLuaError(err)
		sb.failInit()
		return sb.lastErr.(*Error)
	}
	sb.endMemSample()

	sb.state = StateRunning
	sb.log.Debug("sandbox initialized", zap.String("sandbox_id", sb.id), zap.Uint64("instruction_limit", sb.cfg.InstructionLimit))
	return nil
}

// Invoke resets the instruction counter and calls the guest-defined global
// "process" with arg, the host-agreed entry point. It returns the guest's
// integer status (0 = success). ctx may be nil, in which case
// context.Background() is used; the sandbox's own instruction ticker is
// always layered underneath whatever ctx the caller supplies.
func (sb *Sandbox) Invoke(ctx context.Context, arg int) (int, error) {
	results, err := sb.CallFunction(ctx, "process", lua.LNumber(arg))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, newError(KindGuestError, "process returned no value")
	}
	n, ok := results[0].(lua.LNumber)
	if !ok {
		return 0, newError(KindGuestError, "process did not return an integer status")
	}
	return int(n), nil
}

// CallFunction calls the global Lua function named fn with args, enforcing
// the instruction ceiling across the call via ctx. It is a lower-level
// entry point than Invoke, useful for host drivers (such as the CLI REPL)
// that need to exercise guest functions other than the "process" contract.
// ctx may be nil, in which case context.Background() is used.
func (sb *Sandbox) CallFunction(ctx context.Context, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.state != StateRunning {
		return nil, newError(KindInvalidConfiguration, "sandbox is not running (state=%s)", sb.state)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sb.ticker = instruction.NewTicker(ctx, sb.cfg.InstructionLimit)
	sb.L.SetContext(sb.ticker)

	callee := sb.L.GetGlobal(fn)
	if callee == lua.LNil {
		return nil, newError(KindGuestError, "no such guest function: %s", fn)
	}

	sb.beginMemSample()
	top := sb.L.GetTop()
	sb.L.Push(callee)
	for _, a := range args {
		sb.L.Push(a)
	}
	prevErr := sb.lastErr
	err := sb.L.PCall(len(args), lua.MultRet, nil)
	sb.endMemSample()
	sb.acct.Set(quota.Instructions, sb.ticker.Count())

	if err != nil {
		switch {
		case sb.ticker.Exceeded():
			sb.lastErr = newError(KindQuotaExceeded, "instruction_limit exceeded")
		case strings.Contains(err.Error(), "output_limit exceeded"):
			sb.lastErr = newError(KindQuotaExceeded, "output_limit exceeded")
		default:
			// A serializer error that output() recorded during this call
			// is kept verbatim instead of being reclassified.
			if e, ok := sb.lastErr.(*Error); !ok || sb.lastErr == prevErr || e.Kind != KindSerializerError || !strings.Contains(err.Error(), e.Message) {
				sb.lastErr = classifyLuaError(err)
			}
		}
		return nil, sb.lastErr.(*Error)
	}

	nret := sb.L.GetTop() - top
	results := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		results[i] = sb.L.Get(top + 1 + i)
	}
	sb.L.SetTop(top)
	return results, nil
}

// Terminate saves a preservation snapshot (if configured) and permanently
// tears down the underlying Lua VM. It is idempotent: calling it more than
// once is a no-op after the first call.
func (sb *Sandbox) Terminate() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.state == StateTerminated {
		return nil
	}
	if sb.L == nil {
		sb.state = StateTerminated
		return nil
	}

	var saveErr error
	if sb.cfg.PreservationPath != "" {
		saveErr = preservation.Save(sb.L, sb.cfg.PreservationPath)
	}
	sb.L.Close()
	sb.L = nil
	sb.state = StateTerminated
	sb.acct.Set(quota.Memory, 0)
	sb.log.Debug("sandbox terminated", zap.String("sandbox_id", sb.id), zap.Error(saveErr))
	if saveErr != nil {
		return wrapError(saveErr, KindInvalidConfiguration)
	}
	return nil
}

// failInit tears down a partially-initialized VM on a failed Init call,
// matching the documented init() failure transition straight to TERMINATED
// rather than leaving the sandbox stuck (and its VM leaked) in
// StateUninitialized.
func (sb *Sandbox) failInit() {
	if sb.L != nil {
		sb.L.Close()
		sb.L = nil
	}
	sb.state = StateTerminated
	sb.acct.Set(quota.Memory, 0)
}

// beginMemSample and endMemSample maintain an advisory memory-usage figure
// by sampling runtime.MemStats around guest execution. gopher-lua exposes
// no allocator interposer, so unlike the instruction and output quotas this
// one cannot reject an over-budget allocation mid-call — it can only report
// that the ceiling was crossed after the fact, which Usage/Stats surface.
func (sb *Sandbox) beginMemSample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sb.memBase = ms.HeapAlloc
	sb.memAlive = true
}

func (sb *Sandbox) endMemSample() {
	if !sb.memAlive {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > sb.memBase {
		sb.acct.Set(quota.Memory, ms.HeapAlloc-sb.memBase)
	}
	sb.memAlive = false
}

func classifyLuaError(err error) *Error {
	if lerr, ok := err.(*lua.ApiError); ok {
		if lerr.Cause != nil {
			return newError(KindGuestError, "%s", lerr.Cause.Error())
		}
		return newError(KindGuestError, "%s", lua.LVAsString(lerr.Object))
	}
	return newError(KindGuestError, "%s", err.Error())
}
