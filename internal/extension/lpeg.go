package extension

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// lpeg is registered purely to its registration contract: a small
// pattern-combinator subset sufficient for a guest-side grammar module to
// build literal/char-class/sequence/choice/repetition matchers with
// captures. Full LPeg (back-references, look-ahead, grammars via V(), the
// complete capture algebra) is out of scope.

const patternTypeName = "lpeg.pattern"

// matchFunc attempts to match subject starting at pos (0-based byte
// offset). On success it returns the position just past the match and
// appends any captures produced along the way; on failure it returns
// ok=false and the capture slice is left untouched by convention (callers
// snapshot its length before trying an alternative).
type matchFunc func(subject string, pos int, caps *[]string) (next int, ok bool)

type pattern struct {
	fn matchFunc
}

func newPatternUserData(L *lua.LState, p *pattern) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = p
	ud.Metatable = patternMetatable(L)
	return ud
}

var cachedPatternMT *lua.LTable

func patternMetatable(L *lua.LState) *lua.LTable {
	if cachedPatternMT != nil {
		return cachedPatternMT
	}
	mt := L.NewTypeMetatable(patternTypeName)
	L.SetField(mt, "__index", L.NewFunction(patternIndex))
	L.SetField(mt, "__mul", L.NewFunction(patternConcat))
	L.SetField(mt, "__add", L.NewFunction(patternChoice))
	L.SetField(mt, "__pow", L.NewFunction(patternRepeat))
	cachedPatternMT = mt
	return mt
}

func patternOf(v lua.LValue) *pattern {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	p, _ := ud.Value.(*pattern)
	return p
}

func toPattern(L *lua.LState, v lua.LValue) *pattern {
	if p := patternOf(v); p != nil {
		return p
	}
	if s, ok := v.(lua.LString); ok {
		return literalPattern(string(s))
	}
	L.RaiseError("lpeg: expected a pattern")
	return nil
}

func literalPattern(lit string) *pattern {
	return &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
		if strings.HasPrefix(subject[pos:], lit) {
			return pos + len(lit), true
		}
		return pos, false
	}}
}

var patternMethods = map[string]lua.LGFunction{
	"match": func(L *lua.LState) int {
		p := patternOf(L.CheckUserData(1))
		subject := L.CheckString(2)
		var caps []string
		end, ok := p.fn(subject, 0, &caps)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		if len(caps) > 0 {
			tbl := L.NewTable()
			for _, c := range caps {
				tbl.Append(lua.LString(c))
			}
			L.Push(tbl)
			return 1
		}
		L.Push(lua.LString(subject[:end]))
		return 1
	},
}

func patternIndex(L *lua.LState) int {
	_ = L.CheckUserData(1)
	key := L.CheckString(2)
	if fn, ok := patternMethods[key]; ok {
		L.Push(L.NewFunction(fn))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

func patternConcat(L *lua.LState) int {
	a := toPattern(L, L.Get(1))
	b := toPattern(L, L.Get(2))
	p := &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
		mark := len(*caps)
		next, ok := a.fn(subject, pos, caps)
		if !ok {
			return pos, false
		}
		next, ok = b.fn(subject, next, caps)
		if !ok {
			*caps = (*caps)[:mark]
			return pos, false
		}
		return next, true
	}}
	L.Push(newPatternUserData(L, p))
	return 1
}

func patternChoice(L *lua.LState) int {
	a := toPattern(L, L.Get(1))
	b := toPattern(L, L.Get(2))
	p := &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
		mark := len(*caps)
		if next, ok := a.fn(subject, pos, caps); ok {
			return next, true
		}
		*caps = (*caps)[:mark]
		return b.fn(subject, pos, caps)
	}}
	L.Push(newPatternUserData(L, p))
	return 1
}

func patternRepeat(L *lua.LState) int {
	a := toPattern(L, L.Get(1))
	n := L.CheckInt(2)
	p := &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
		mark := len(*caps)
		count := 0
		cur := pos
		for {
			next, ok := a.fn(subject, cur, caps)
			if !ok {
				break
			}
			if next == cur {
				break // avoid infinite loops on zero-width matches
			}
			cur = next
			count++
		}
		if count < n {
			*caps = (*caps)[:mark]
			return pos, false
		}
		return cur, true
	}}
	L.Push(newPatternUserData(L, p))
	return 1
}

// OpenLPeg registers the P/R/S/C/Ct constructors.
func OpenLPeg(L *lua.LState) int {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"P": func(L *lua.LState) int {
			v := L.Get(1)
			if n, ok := v.(lua.LNumber); ok {
				count := int(n)
				L.Push(newPatternUserData(L, &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
					if pos+count > len(subject) {
						return pos, false
					}
					return pos + count, true
				}}))
				return 1
			}
			L.Push(newPatternUserData(L, literalPattern(L.CheckString(1))))
			return 1
		},
		"R": func(L *lua.LState) int {
			ranges := make([]string, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				ranges = append(ranges, L.CheckString(i))
			}
			L.Push(newPatternUserData(L, &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
				if pos >= len(subject) {
					return pos, false
				}
				c := subject[pos]
				for _, r := range ranges {
					if len(r) == 2 && r[0] <= c && c <= r[1] {
						return pos + 1, true
					}
				}
				return pos, false
			}}))
			return 1
		},
		"S": func(L *lua.LState) int {
			set := L.CheckString(1)
			L.Push(newPatternUserData(L, &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
				if pos >= len(subject) {
					return pos, false
				}
				if strings.IndexByte(set, subject[pos]) >= 0 {
					return pos + 1, true
				}
				return pos, false
			}}))
			return 1
		},
		"C": func(L *lua.LState) int {
			inner := toPattern(L, L.Get(1))
			L.Push(newPatternUserData(L, &pattern{fn: func(subject string, pos int, caps *[]string) (int, bool) {
				next, ok := inner.fn(subject, pos, caps)
				if !ok {
					return pos, false
				}
				*caps = append(*caps, subject[pos:next])
				return next, true
			}}))
			return 1
		},
		"Ct": func(L *lua.LState) int {
			inner := toPattern(L, L.Get(1))
			L.Push(newPatternUserData(L, inner))
			return 1
		},
	})
	L.Push(mod)
	return 1
}
