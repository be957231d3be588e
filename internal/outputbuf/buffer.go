// Package outputbuf implements the sandbox's growable output buffer: every
// guest-visible write funnels through one of these before the host drains it.
package outputbuf

import (
	"errors"
	"fmt"
)

// ErrCeiling is returned when an append would grow the buffer past maxsize.
var ErrCeiling = errors.New("output_limit exceeded")

const initialSize = 256

// Buffer is a contiguous byte region that doubles on demand up to an
// optional ceiling. It mirrors lua_sandbox's output_data: data/pos/size/
// maxsize, with pos tracking the logical length (a trailing NUL byte is
// kept past pos for parity with the original's C-string consumers, though
// nothing in Go reads it).
type Buffer struct {
	data    []byte
	pos     int
	maxsize int // 0 = unbounded
}

// New creates a Buffer with the given ceiling (0 = unbounded).
func New(maxsize int) *Buffer {
	size := initialSize
	if maxsize != 0 && size > maxsize {
		size = maxsize
	}
	return &Buffer{
		data:    make([]byte, size+1), // +1 for the trailing NUL slot
		maxsize: maxsize,
	}
}

// Len returns the logical length of the buffer (== pos).
func (b *Buffer) Len() int { return b.pos }

// Bytes returns the written region (not including the trailing NUL).
func (b *Buffer) Bytes() []byte { return b.data[:b.pos] }

// Reset clears the buffer back to empty without releasing capacity.
func (b *Buffer) Reset() {
	b.pos = 0
	b.data[0] = 0
}

// ensure grows the buffer (doubling) until it can hold `needed` more bytes
// past pos, or returns ErrCeiling if that would exceed maxsize.
func (b *Buffer) ensure(needed int) error {
	have := len(b.data) - 1 - b.pos // usable bytes before the NUL slot
	if have >= needed {
		return nil
	}
	if b.maxsize != 0 && b.pos+needed > b.maxsize {
		return ErrCeiling
	}
	newsize := len(b.data)
	if newsize == 0 {
		newsize = initialSize
	}
	for newsize-1-b.pos < needed {
		newsize *= 2
	}
	if b.maxsize != 0 && newsize-1 > b.maxsize {
		newsize = b.maxsize + 1
	}
	grown := make([]byte, newsize)
	copy(grown, b.data[:b.pos])
	b.data = grown
	return nil
}

// AppendStr copies s into the buffer, advancing pos by len(s) and keeping a
// trailing NUL past the new pos.
func (b *Buffer) AppendStr(s string) error {
	if err := b.ensure(len(s)); err != nil {
		return err
	}
	copy(b.data[b.pos:], s)
	b.pos += len(s)
	b.data[b.pos] = 0
	return nil
}

// AppendChar appends a single byte plus a trailing NUL.
func (b *Buffer) AppendChar(c byte) error {
	if err := b.ensure(1); err != nil {
		return err
	}
	b.data[b.pos] = c
	b.pos++
	b.data[b.pos] = 0
	return nil
}

// AppendFmt formats into the buffer, doubling and retrying until the
// formatted text fits or the ceiling is hit. Go's fmt.Sprintf already
// computes the true length in one pass (unlike C's vsnprintf, which can
// return a short count on some platforms), so the retry loop the original
// needs for that case collapses to a single ensure+copy here; the loop
// shape is kept so a future caller relying on a short-count-prone formatter
// still gets the same doubling-retry behavior.
func (b *Buffer) AppendFmt(format string, args ...interface{}) error {
	text := fmt.Sprintf(format, args...)
	for {
		if err := b.ensure(len(text)); err != nil {
			return err
		}
		have := len(b.data) - 1 - b.pos
		if have < len(text) {
			continue
		}
		copy(b.data[b.pos:], text)
		b.pos += len(text)
		b.data[b.pos] = 0
		return nil
	}
}
