package extension

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"github.com/spaolacci/murmur3"
)

const bloomFilterTypeName = "bloom_filter"

// BloomFilter is a classic k-hash-function bloom filter. The k seeded hashes
// are derived from a single murmur3 128-bit hash via double hashing
// (Kirsch-Mitzenmacher), avoiding k independent hash functions.
type BloomFilter struct {
	bits []uint64
	m    uint64 // bit count
	k    int
}

// NewBloomFilter allocates a filter sized for m bits and k hash functions.
func NewBloomFilter(m uint64, k int) *BloomFilter {
	if m == 0 {
		m = 1
	}
	if k < 1 {
		k = 1
	}
	return &BloomFilter{
		bits: make([]uint64, (m+63)/64),
		m:    m,
		k:    k,
	}
}

func (bf *BloomFilter) positions(item []byte) []uint64 {
	h1, h2 := murmur3.Sum128(item)
	pos := make([]uint64, bf.k)
	for i := 0; i < bf.k; i++ {
		pos[i] = (h1 + uint64(i)*h2) % bf.m
	}
	return pos
}

// Add sets item's k bit positions.
func (bf *BloomFilter) Add(item []byte) {
	for _, p := range bf.positions(item) {
		bf.bits[p/64] |= 1 << (p % 64)
	}
}

// Query reports whether item may be in the set (false positives possible,
// false negatives never).
func (bf *BloomFilter) Query(item []byte) bool {
	for _, p := range bf.positions(item) {
		if bf.bits[p/64]&(1<<(p%64)) == 0 {
			return false
		}
	}
	return true
}

func userdataBloom(v lua.LValue) *BloomFilter {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	bf, _ := ud.Value.(*BloomFilter)
	return bf
}

var bloomFilterMethods = map[string]lua.LGFunction{
	"add": func(L *lua.LState) int {
		bf := userdataBloom(L.CheckUserData(1))
		bf.Add([]byte(L.CheckString(2)))
		return 0
	},
	"query": func(L *lua.LState) int {
		bf := userdataBloom(L.CheckUserData(1))
		L.Push(lua.LBool(bf.Query([]byte(L.CheckString(2)))))
		return 1
	},
	"clear": func(L *lua.LState) int {
		bf := userdataBloom(L.CheckUserData(1))
		for i := range bf.bits {
			bf.bits[i] = 0
		}
		return 0
	},
}

func bloomIndex(L *lua.LState) int {
	_ = L.CheckUserData(1)
	key := L.CheckString(2)
	if fn, ok := bloomFilterMethods[key]; ok {
		L.Push(L.NewFunction(fn))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// OpenBloomFilter registers `bloom_filter.new(items, probability)`.
func OpenBloomFilter(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"new": func(L *lua.LState) int {
			items := uint64(L.CheckInt64(1))
			probability := 0.01
			if L.GetTop() >= 2 {
				probability = float64(L.CheckNumber(2))
			}
			m, k := optimalBloomParams(items, probability)
			bf := NewBloomFilter(m, k)
			ud := L.NewUserData()
			ud.Value = bf
			mt := L.NewTypeMetatable(bloomFilterTypeName)
			L.SetField(mt, "__index", L.NewFunction(bloomIndex))
			ud.Metatable = mt
			L.Push(ud)
			return 1
		},
	})
	L.Push(mod)
	return 1
}

// optimalBloomParams derives bit count and hash count from the classic
// bloom-filter sizing formulas.
func optimalBloomParams(n uint64, p float64) (m uint64, k int) {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	// m = -(n * ln(p)) / (ln(2)^2), k = (m/n) * ln(2)
	const ln2 = 0.6931471805599453
	const ln2sq = ln2 * ln2
	lnp := math.Log(p)
	mf := -(float64(n) * lnp) / ln2sq
	m = uint64(mf) + 1
	kf := (mf / float64(n)) * ln2
	k = int(kf + 0.5)
	if k < 1 {
		k = 1
	}
	return m, k
}
