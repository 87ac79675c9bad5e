package heap

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ToBoolean implements the ECMAScript ToBoolean operation.
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindBoolean:
		return v.num != 0
	case KindNumber:
		return !(v.num == 0 || math.IsNaN(v.num))
	case KindString:
		return v.str != ""
	case KindBigInt:
		return v.ref.(*big.Int).Sign() != 0
	case KindSymbol, KindObject:
		return true
	default:
		return false
	}
}

// ToPrimitive converts objects using Symbol.toPrimitive, then valueOf and
// toString in hint order. hint is "default", "number" or "string".
func (h *Heap) ToPrimitive(v Value, hint string) (Value, error) {
	o := v.AsObject()
	if o == nil {
		return v, nil
	}
	exotic, err := h.Get(o, SymbolKey(SymToPrimitive), v)
	if err != nil {
		return Undefined, err
	}
	if !exotic.IsNullish() {
		if !exotic.IsCallable() {
			return Undefined, TypeErrorf("Symbol.toPrimitive is not a function")
		}
		res, err := h.Call(exotic.AsObject(), v, NewString(hint))
		if err != nil {
			return Undefined, err
		}
		if res.IsObject() {
			return Undefined, TypeErrorf("Cannot convert object to primitive value")
		}
		return res, nil
	}
	order := [2]string{"valueOf", "toString"}
	if hint == "string" {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn, err := h.Get(o, StringKey(name), v)
		if err != nil {
			return Undefined, err
		}
		if !fn.IsCallable() {
			continue
		}
		res, err := h.Call(fn.AsObject(), v)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, TypeErrorf("Cannot convert object to primitive value")
}

// ToNumber implements the ECMAScript ToNumber operation.
func (h *Heap) ToNumber(v Value) (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindUndefined, kindHole, kindUninitialized:
		return math.NaN(), nil
	case KindNull:
		return 0, nil
	case KindBoolean:
		return v.num, nil
	case KindString:
		return StringToNumber(v.str), nil
	case KindSymbol:
		return 0, TypeErrorf("Cannot convert a Symbol value to a number")
	case KindBigInt:
		return 0, TypeErrorf("Cannot convert a BigInt value to a number")
	}
	p, err := h.ToPrimitive(v, "number")
	if err != nil {
		return 0, err
	}
	return h.ToNumber(p)
}

// ToNumeric returns a Number or BigInt value.
func (h *Heap) ToNumeric(v Value) (Value, error) {
	p, err := h.ToPrimitive(v, "number")
	if err != nil {
		return Undefined, err
	}
	if p.kind == KindBigInt {
		return p, nil
	}
	n, err := h.ToNumber(p)
	if err != nil {
		return Undefined, err
	}
	return NumberValue(n), nil
}

// ToString implements the ECMAScript ToString operation.
func (h *Heap) ToString(v Value) (string, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return NumberToString(v.num), nil
	case KindUndefined, kindHole, kindUninitialized:
		return "undefined", nil
	case KindNull:
		return "null", nil
	case KindBoolean:
		if v.num != 0 {
			return "true", nil
		}
		return "false", nil
	case KindBigInt:
		return v.ref.(*big.Int).String(), nil
	case KindSymbol:
		return "", TypeErrorf("Cannot convert a Symbol value to a string")
	}
	p, err := h.ToPrimitive(v, "string")
	if err != nil {
		return "", err
	}
	return h.ToString(p)
}

// ToPropertyKey converts v to a property key.
func (h *Heap) ToPropertyKey(v Value) (PropertyKey, error) {
	switch v.kind {
	case KindString:
		return StringKey(v.str), nil
	case KindSymbol:
		return SymbolKey(v.ref.(*Symbol)), nil
	case KindNumber:
		if v.num >= 0 && v.num < 1<<32-1 && v.num == math.Trunc(v.num) {
			return IndexKey(uint32(v.num)), nil
		}
	}
	p, err := h.ToPrimitive(v, "string")
	if err != nil {
		return PropertyKey{}, err
	}
	if p.kind == KindSymbol {
		return SymbolKey(p.ref.(*Symbol)), nil
	}
	s, err := h.ToString(p)
	if err != nil {
		return PropertyKey{}, err
	}
	return StringKey(s), nil
}

// ToIntegerOrInfinity truncates toward zero, mapping NaN to 0.
func ToIntegerOrInfinity(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Trunc(f)
}

// ToInt32 implements the ECMAScript ToInt32 operation.
func ToInt32(f float64) int32 {
	return int32(ToUint32(f))
}

// ToUint32 implements the ECMAScript ToUint32 operation.
func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindNumber, KindBoolean:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBigInt:
		return a.ref.(*big.Int).Cmp(b.ref.(*big.Int)) == 0
	default:
		return a.ref == b.ref
	}
}

// SameValue implements Object.is.
func SameValue(a, b Value) bool {
	if a.kind == KindNumber && b.kind == KindNumber {
		if math.IsNaN(a.num) && math.IsNaN(b.num) {
			return true
		}
		if a.num == 0 && b.num == 0 {
			return math.Signbit(a.num) == math.Signbit(b.num)
		}
	}
	return StrictEquals(a, b)
}

// SameValueZero is SameValue with +0 and -0 equal.
func SameValueZero(a, b Value) bool {
	if a.kind == KindNumber && b.kind == KindNumber && math.IsNaN(a.num) && math.IsNaN(b.num) {
		return true
	}
	return StrictEquals(a, b)
}

// LooseEquals implements ==.
func (h *Heap) LooseEquals(a, b Value) (bool, error) {
	if a.kind == b.kind {
		return StrictEquals(a, b), nil
	}
	if a.IsNullish() && b.IsNullish() {
		return true, nil
	}
	if a.IsNullish() || b.IsNullish() {
		return false, nil
	}
	switch {
	case a.kind == KindNumber && b.kind == KindString:
		return a.num == StringToNumber(b.str), nil
	case a.kind == KindString && b.kind == KindNumber:
		return StringToNumber(a.str) == b.num, nil
	case a.kind == KindBigInt && b.kind == KindString:
		n, ok := StringToBigInt(b.str)
		return ok && n.Cmp(a.AsBigInt()) == 0, nil
	case a.kind == KindString && b.kind == KindBigInt:
		return h.LooseEquals(b, a)
	case a.kind == KindBoolean:
		return h.LooseEquals(NumberValue(a.num), b)
	case b.kind == KindBoolean:
		return h.LooseEquals(a, NumberValue(b.num))
	case a.kind == KindObject && b.kind != KindObject:
		p, err := h.ToPrimitive(a, "default")
		if err != nil {
			return false, err
		}
		return h.LooseEquals(p, b)
	case b.kind == KindObject && a.kind != KindObject:
		p, err := h.ToPrimitive(b, "default")
		if err != nil {
			return false, err
		}
		return h.LooseEquals(a, p)
	case a.kind == KindBigInt && b.kind == KindNumber:
		return bigEqualsNumber(a.AsBigInt(), b.num), nil
	case a.kind == KindNumber && b.kind == KindBigInt:
		return bigEqualsNumber(b.AsBigInt(), a.num), nil
	}
	return false, nil
}

func bigEqualsNumber(b *big.Int, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	bf := new(big.Float).SetInt(b)
	return bf.Cmp(big.NewFloat(f)) == 0
}

// NumberToString implements Number::toString for radix 10.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + string(sign) + digits
}

func isJSSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0xa0, 0x1680, 0x2028, 0x2029, 0x202f, 0x205f, 0x3000, 0xfeff:
		return true
	}
	return r >= 0x2000 && r <= 0x200a
}

// TrimSpace trims JS whitespace and line terminators.
func TrimSpace(s string) string {
	return strings.TrimFunc(s, isJSSpace)
}

func TrimLeft(s string) string  { return strings.TrimLeftFunc(s, isJSSpace) }
func TrimRight(s string) string { return strings.TrimRightFunc(s, isJSSpace) }

// StringToNumber implements StringToNumber (the numeric string grammar).
func StringToNumber(s string) float64 {
	s = TrimSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok || strings.ContainsAny(s[2:], "_+-") {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if !isDecimalLiteral(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// isDecimalLiteral accepts [+-] digits [. digits] [e [+-] digits].
func isDecimalLiteral(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// StringToBigInt parses a StringIntegerLiteral.
func StringToBigInt(s string) (*big.Int, bool) {
	s = TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base, s = 16, s[2:]
		case 'o', 'O':
			base, s = 8, s[2:]
		case 'b', 'B':
			base, s = 2, s[2:]
		}
	}
	if strings.ContainsAny(s, "_.eE") || (base != 10 && strings.ContainsAny(s, "+-")) {
		return nil, false
	}
	return new(big.Int).SetString(s, base)
}
