package extension

import (
	"math"
	"math/bits"

	lua "github.com/yuin/gopher-lua"
	"github.com/spaolacci/murmur3"
)

const hyperLogLogTypeName = "hyperloglog"

// precision fixes the register count at 2^precision (16384 registers,
// ~0.8% standard error), a reasonable default matching common HLL libraries.
const hllPrecision = 14
const hllRegisters = 1 << hllPrecision

// HyperLogLog is a dense-representation cardinality estimator.
type HyperLogLog struct {
	registers [hllRegisters]uint8
}

// NewHyperLogLog allocates a zeroed estimator.
func NewHyperLogLog() *HyperLogLog {
	return &HyperLogLog{}
}

// Add records one observation of item.
func (h *HyperLogLog) Add(item []byte) {
	hash := murmur3.Sum64(item)
	idx := hash >> (64 - hllPrecision)
	rest := hash<<hllPrecision | (1 << (hllPrecision - 1))
	rho := uint8(bits.LeadingZeros64(rest) + 1)
	if rho > h.registers[idx] {
		h.registers[idx] = rho
	}
}

// Count estimates cardinality using the standard HLL estimator with the
// small-range (linear counting) correction; no large-range correction is
// applied.
func (h *HyperLogLog) Count() uint64 {
	m := float64(hllRegisters)
	sum := 0.0
	zeros := 0
	for _, r := range h.registers {
		sum += 1.0 / math.Pow(2, float64(r))
		if r == 0 {
			zeros++
		}
	}
	alpha := 0.7213 / (1 + 1.079/m)
	estimate := alpha * m * m / sum

	if estimate <= 2.5*m && zeros > 0 {
		return uint64(m * math.Log(m/float64(zeros)))
	}
	return uint64(estimate)
}

// Merge folds other into h by taking the per-register max (standard HLL
// union semantics).
func (h *HyperLogLog) Merge(other *HyperLogLog) {
	for i := range h.registers {
		if other.registers[i] > h.registers[i] {
			h.registers[i] = other.registers[i]
		}
	}
}

func userdataHLL(v lua.LValue) *HyperLogLog {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	h, _ := ud.Value.(*HyperLogLog)
	return h
}

func newHLLUserData(L *lua.LState, h *HyperLogLog) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = h
	mt := L.NewTypeMetatable(hyperLogLogTypeName)
	L.SetField(mt, "__index", L.NewFunction(hllIndex))
	ud.Metatable = mt
	return ud
}

var hllMethods = map[string]lua.LGFunction{
	"add": func(L *lua.LState) int {
		h := userdataHLL(L.CheckUserData(1))
		h.Add([]byte(L.CheckString(2)))
		return 0
	},
	"count": func(L *lua.LState) int {
		h := userdataHLL(L.CheckUserData(1))
		L.Push(lua.LNumber(h.Count()))
		return 1
	},
	"merge": func(L *lua.LState) int {
		h := userdataHLL(L.CheckUserData(1))
		other := userdataHLL(L.CheckUserData(2))
		h.Merge(other)
		return 0
	},
	"clear": func(L *lua.LState) int {
		h := userdataHLL(L.CheckUserData(1))
		for i := range h.registers {
			h.registers[i] = 0
		}
		return 0
	},
}

func hllIndex(L *lua.LState) int {
	_ = L.CheckUserData(1)
	key := L.CheckString(2)
	if fn, ok := hllMethods[key]; ok {
		L.Push(L.NewFunction(fn))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// OpenHyperLogLog registers `hyperloglog.new()`.
func OpenHyperLogLog(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"new": func(L *lua.LState) int {
			L.Push(newHLLUserData(L, NewHyperLogLog()))
			return 1
		},
	})
	L.Push(mod)
	return 1
}
