// Package extension implements the sandbox's built-in aggregate-data-type
// libraries (circular_buffer, bloom_filter, hyperloglog) plus the minimal
// lpeg and pb registrations. These data-structure extensions are scoped to
// their registration contract — making `require(name)` succeed and return a
// usable table/userdata; the implementations here are intentionally small,
// correct subsets rather than full ports of the originals.
package extension

import (
	"encoding/binary"
	"errors"
	"math"

	lua "github.com/yuin/gopher-lua"
)

const circularBufferTypeName = "circular_buffer"

// CircularBuffer is a fixed-row ring of named numeric columns, each with an
// aggregation mode (sum/min/max/avg — the "representation" concept applied
// to column headers rather than scalar output).
type CircularBuffer struct {
	rows, cols int
	secondsPerRow int64
	columns       []columnHeader
	data          []float64 // rows*cols, row-major
	times         []int64   // start time (seconds) of each row
	currentRow    int
	newestTime    int64
}

type columnHeader struct {
	name string
	agg  string // "sum", "min", "max", "avg"
}

var ErrColumnRange = errors.New("circular_buffer: column index out of range")

// NewCircularBuffer allocates a buffer with the given row count, column
// count and seconds-per-row granularity.
func NewCircularBuffer(rows, cols int, secondsPerRow int64) *CircularBuffer {
	cb := &CircularBuffer{
		rows:          rows,
		cols:          cols,
		secondsPerRow: secondsPerRow,
		columns:       make([]columnHeader, cols),
		data:          make([]float64, rows*cols),
		times:         make([]int64, rows),
	}
	for i := range cb.data {
		cb.data[i] = math.NaN()
	}
	return cb
}

// SetHeader names column (1-based) with an aggregation mode.
func (cb *CircularBuffer) SetHeader(col int, name, agg string) error {
	if col < 1 || col > cb.cols {
		return ErrColumnRange
	}
	cb.columns[col-1] = columnHeader{name: name, agg: agg}
	return nil
}

func (cb *CircularBuffer) rowForTime(t int64) (int, bool) {
	if cb.secondsPerRow <= 0 {
		return 0, false
	}
	newestRowStart := (cb.newestTime / cb.secondsPerRow) * cb.secondsPerRow
	rowStart := (t / cb.secondsPerRow) * cb.secondsPerRow
	delta := (rowStart - newestRowStart) / cb.secondsPerRow
	idx := cb.currentRow + int(delta)
	idx = ((idx % cb.rows) + cb.rows) % cb.rows
	if t > cb.newestTime {
		cb.newestTime = t
		cb.currentRow = idx
	}
	if rowStart < newestRowStart-int64(cb.rows-1)*cb.secondsPerRow {
		return 0, false // too old, outside the window
	}
	return idx, true
}

// Add adds value to (time, col), combining with the existing cell per the
// column's aggregation mode.
func (cb *CircularBuffer) Add(t int64, col int, value float64) error {
	if col < 1 || col > cb.cols {
		return ErrColumnRange
	}
	row, ok := cb.rowForTime(t)
	if !ok {
		return nil
	}
	if cb.times[row] != t/cb.secondsPerRow*cb.secondsPerRow {
		for c := 0; c < cb.cols; c++ {
			cb.data[row*cb.cols+c] = math.NaN()
		}
		cb.times[row] = t / cb.secondsPerRow * cb.secondsPerRow
	}
	idx := row*cb.cols + (col - 1)
	cur := cb.data[idx]
	if math.IsNaN(cur) {
		cb.data[idx] = value
		return nil
	}
	switch cb.columns[col-1].agg {
	case "min":
		if value < cur {
			cb.data[idx] = value
		}
	case "max":
		if value > cur {
			cb.data[idx] = value
		}
	default: // sum, avg (avg is accumulated as a running sum for simplicity)
		cb.data[idx] = cur + value
	}
	return nil
}

// Get reads the current value at (time, col); NaN means unset.
func (cb *CircularBuffer) Get(t int64, col int) (float64, error) {
	if col < 1 || col > cb.cols {
		return 0, ErrColumnRange
	}
	row, ok := cb.rowForTime(t)
	if !ok {
		return math.NaN(), nil
	}
	return cb.data[row*cb.cols+(col-1)], nil
}

// binary dump format: magic "CB01", rows, cols, secondsPerRow, then the raw
// row-major float64 grid, little-endian. This is our own compact format;
// only a type-specific dump is required, not a specific wire format.
var circularBufferMagic = [4]byte{'C', 'B', '0', '1'}

// Dump serializes the buffer to its binary form.
func (cb *CircularBuffer) Dump() []byte {
	buf := make([]byte, 0, 16+len(cb.data)*8)
	buf = append(buf, circularBufferMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(cb.rows))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(cb.cols))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(cb.secondsPerRow))
	for _, v := range cb.data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// userdataOf extracts a *CircularBuffer from a gopher-lua userdata argument,
// or nil if v is not one.
func userdataOf(v lua.LValue) *CircularBuffer {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	cb, ok := ud.Value.(*CircularBuffer)
	if !ok {
		return nil
	}
	return cb
}

func newCircularBufferUserData(L *lua.LState, cb *CircularBuffer) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = cb
	mt := L.NewTypeMetatable(circularBufferTypeName)
	L.SetField(mt, "__index", L.NewFunction(cbIndex))
	ud.Metatable = mt
	return ud
}

var circularBufferMethods = map[string]lua.LGFunction{
	"add": func(L *lua.LState) int {
		cb := userdataOf(L.CheckUserData(1))
		t := L.CheckInt64(2)
		col := L.CheckInt(3)
		value := L.CheckNumber(4)
		if err := cb.Add(t, col, float64(value)); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	},
	"set": func(L *lua.LState) int {
		cb := userdataOf(L.CheckUserData(1))
		t := L.CheckInt64(2)
		col := L.CheckInt(3)
		value := L.CheckNumber(4)
		cb.data3set(t, col, float64(value))
		return 0
	},
	"get": func(L *lua.LState) int {
		cb := userdataOf(L.CheckUserData(1))
		t := L.CheckInt64(2)
		col := L.CheckInt(3)
		v, err := cb.Get(t, col)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(lua.LNumber(v))
		return 1
	},
	"set_header": func(L *lua.LState) int {
		cb := userdataOf(L.CheckUserData(1))
		col := L.CheckInt(2)
		name := L.CheckString(3)
		agg := L.OptString(4, "sum")
		if err := cb.SetHeader(col, name, agg); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	},
}

func (cb *CircularBuffer) data3set(t int64, col int, value float64) {
	row, ok := cb.rowForTime(t)
	if !ok || col < 1 || col > cb.cols {
		return
	}
	cb.data[row*cb.cols+(col-1)] = value
}

func cbIndex(L *lua.LState) int {
	_ = L.CheckUserData(1)
	key := L.CheckString(2)
	if fn, ok := circularBufferMethods[key]; ok {
		L.Push(L.NewFunction(fn))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// OpenCircularBuffer registers the `circular_buffer.new(rows, cols,
// secondsPerRow)` constructor.
func OpenCircularBuffer(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"new": func(L *lua.LState) int {
			rows := L.CheckInt(1)
			cols := L.CheckInt(2)
			spr := L.CheckInt64(3)
			cb := NewCircularBuffer(rows, cols, spr)
			L.Push(newCircularBufferUserData(L, cb))
			return 1
		},
	})
	L.Push(mod)
	return 1
}

// DumpFromLValue returns the binary dump of v if it is a circular_buffer
// userdata, and reports whether v was one — used by the serializer dispatch
// (§4.5's "extension (circular buffer)" row).
func DumpFromLValue(v lua.LValue) ([]byte, bool) {
	cb := userdataOf(v)
	if cb == nil {
		return nil, false
	}
	return cb.Dump(), true
}
