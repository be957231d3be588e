// Package instruction implements the sandbox's instruction interposer.
//
// gopher-lua has no public per-opcode hook (unlike PUC-Rio Lua's
// lua_sethook(L, hook, LUA_MASKCOUNT, k)), but its VM does check
// lua.LState.Context() for cancellation while it dispatches bytecode. Ticker
// is a context.Context whose Done() method doubles as that cancellation
// check's tick: every call increments a counter, and once the counter
// exceeds the configured limit Done() starts reporting the context as
// cancelled.
package instruction

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrLimitExceeded is raised, verbatim, when the instruction limit is hit.
var ErrLimitExceeded = errors.New("instruction_limit exceeded")

var closedChan = func() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Ticker bounds the number of VM dispatch ticks a script may take. A limit
// of 0 means unbounded: Done() never reports cancellation.
type Ticker struct {
	parent  context.Context
	limit   uint64
	count   uint64
	tripped uint32
}

// NewTicker wraps parent with an instruction ceiling. If parent is nil,
// context.Background() is used.
func NewTicker(parent context.Context, limit uint64) *Ticker {
	if parent == nil {
		parent = context.Background()
	}
	return &Ticker{parent: parent, limit: limit}
}

// Reset zeroes the tick count and clears a trip.
func (t *Ticker) Reset() {
	atomic.StoreUint64(&t.count, 0)
	atomic.StoreUint32(&t.tripped, 0)
}

// Count returns the number of ticks observed since the last Reset — this is
// CURRENT[INSTRUCTIONS].
func (t *Ticker) Count() uint64 {
	return atomic.LoadUint64(&t.count)
}

// Deadline implements context.Context.
func (t *Ticker) Deadline() (time.Time, bool) { return t.parent.Deadline() }

// Value implements context.Context.
func (t *Ticker) Value(key interface{}) interface{} { return t.parent.Value(key) }

// Done implements context.Context. Each call is one instruction tick.
func (t *Ticker) Done() <-chan struct{} {
	n := atomic.AddUint64(&t.count, 1)
	if t.limit != 0 && n > t.limit {
		atomic.StoreUint32(&t.tripped, 1)
		return closedChan
	}
	return t.parent.Done()
}

// Err implements context.Context.
func (t *Ticker) Err() error {
	if atomic.LoadUint32(&t.tripped) == 1 {
		return ErrLimitExceeded
	}
	return t.parent.Err()
}

// Exceeded reports whether the ticker has already tripped, without
// consuming a tick the way Done() would.
func (t *Ticker) Exceeded() bool {
	return atomic.LoadUint32(&t.tripped) == 1
}
