package heap

import "strconv"

// PropertyKey is a property name: a string or a symbol identity.
type PropertyKey struct {
	name string
	sym  *Symbol
}

func StringKey(name string) PropertyKey { return PropertyKey{name: name} }

func SymbolKey(s *Symbol) PropertyKey { return PropertyKey{sym: s} }

func IndexKey(i uint32) PropertyKey {
	return PropertyKey{name: strconv.FormatUint(uint64(i), 10)}
}

func (k PropertyKey) IsSymbol() bool  { return k.sym != nil }
func (k PropertyKey) Name() string    { return k.name }
func (k PropertyKey) Symbol() *Symbol { return k.sym }

// Value returns the key as a guest value (string or symbol).
func (k PropertyKey) Value() Value {
	if k.sym != nil {
		return SymbolValue(k.sym)
	}
	return NewString(k.name)
}

func (k PropertyKey) String() string {
	if k.sym != nil {
		return "[" + k.sym.Description + "]"
	}
	return k.name
}

// ArrayIndex reports whether the key is a canonical array index
// (0 .. 2^32-2 without leading zeros).
func (k PropertyKey) ArrayIndex() (uint32, bool) {
	if k.sym != nil {
		return 0, false
	}
	return parseArrayIndex(k.name)
}

func parseArrayIndex(s string) (uint32, bool) {
	n := len(s)
	if n == 0 || n > 10 {
		return 0, false
	}
	if s[0] == '0' && n > 1 {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v >= 1<<32-1 {
		return 0, false
	}
	return uint32(v), true
}
