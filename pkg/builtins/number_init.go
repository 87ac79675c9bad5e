package builtins

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string { return "Number" }

func (n *NumberInitializer) Priority() int { return PriorityNumber }

func thisNumber(r *realm.Realm, this heap.Value, method string) (float64, error) {
	if this.IsNumber() {
		return this.AsNumber(), nil
	}
	if o := this.AsObject(); o != nil {
		if v, ok := o.PrimitiveValue(); ok && v.IsNumber() {
			return v.AsNumber(), nil
		}
	}
	return 0, r.NewTypeError("Number.prototype.%s requires that 'this' be a Number", method)
}

func (n *NumberInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObjectOf("Number", r.Intrinsic(realm.ObjectPrototype), &heap.PrimitiveBox{Value: heap.IntValue(0)})
	if err := ctx.Intrinsic(realm.NumberPrototype, proto); err != nil {
		return err
	}
	toNumber := func(args []heap.Value, r *realm.Realm) (heap.Value, error) {
		if len(args) == 0 {
			return heap.IntValue(0), nil
		}
		v, err := r.Heap.ToNumeric(args[0])
		if err != nil {
			return heap.Undefined, err
		}
		if v.IsBigInt() {
			f, _ := new(big.Float).SetInt(v.AsBigInt()).Float64()
			return num(f), nil
		}
		return v, nil
	}
	ctor := r.NewNativeConstructor("Number", 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) { return toNumber(args, r) },
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			v, err := toNumber(args, r)
			if err != nil {
				return heap.Undefined, err
			}
			p, err := protoFromCtor(r, newTarget, realm.NumberPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			return heap.ObjectValue(r.Heap.NewObjectOf("Number", p, &heap.PrimitiveBox{Value: v})), nil
		}, proto)

	for name, v := range map[string]float64{
		"EPSILON":           math.Nextafter(1, 2) - 1,
		"MAX_SAFE_INTEGER":  1<<53 - 1,
		"MIN_SAFE_INTEGER":  -(1<<53 - 1),
		"MAX_VALUE":         math.MaxFloat64,
		"MIN_VALUE":         math.SmallestNonzeroFloat64,
		"NaN":               math.NaN(),
		"POSITIVE_INFINITY": math.Inf(1),
		"NEGATIVE_INFINITY": math.Inf(-1),
	} {
		ctor.DefineReadOnly(name, num(v))
	}
	r.Method(ctor, "isFinite", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		v := arg(args, 0)
		return heap.BooleanValue(v.IsNumber() && !math.IsInf(v.AsNumber(), 0) && !math.IsNaN(v.AsNumber())), nil
	})
	r.Method(ctor, "isNaN", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		v := arg(args, 0)
		return heap.BooleanValue(v.IsNumber() && math.IsNaN(v.AsNumber())), nil
	})
	r.Method(ctor, "isInteger", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		v := arg(args, 0)
		return heap.BooleanValue(v.IsNumber() && isIntegral(v.AsNumber())), nil
	})
	r.Method(ctor, "isSafeInteger", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		v := arg(args, 0)
		return heap.BooleanValue(v.IsNumber() && isIntegral(v.AsNumber()) && math.Abs(v.AsNumber()) <= 1<<53-1), nil
	})
	parseIntFn := r.Method(ctor, "parseInt", 2, parseInt)
	parseFloatFn := r.Method(ctor, "parseFloat", 1, parseFloat)
	if err := ctx.Intrinsic("parseInt", parseIntFn); err != nil {
		return err
	}
	if err := ctx.Intrinsic("parseFloat", parseFloatFn); err != nil {
		return err
	}

	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "valueOf")
		return num(f), err
	})
	r.Method(proto, "toString", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "toString")
		if err != nil {
			return heap.Undefined, err
		}
		radix := 10.0
		if !arg(args, 0).IsUndefined() {
			if radix, err = toInteger(r, arg(args, 0)); err != nil {
				return heap.Undefined, err
			}
		}
		if radix < 2 || radix > 36 {
			return heap.Undefined, r.NewRangeError("toString() radix must be between 2 and 36")
		}
		if radix == 10 {
			return str(heap.NumberToString(f)), nil
		}
		return str(numberToRadix(f, int(radix))), nil
	})
	r.Method(proto, "toLocaleString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "toLocaleString")
		if err != nil {
			return heap.Undefined, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return str(heap.NumberToString(f)), nil
		}
		return str(humanize.CommafWithDigits(f, 3)), nil
	})
	r.Method(proto, "toFixed", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "toFixed")
		if err != nil {
			return heap.Undefined, err
		}
		digits, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if digits < 0 || digits > 100 {
			return heap.Undefined, r.NewRangeError("toFixed() digits argument must be between 0 and 100")
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1e21 {
			return str(heap.NumberToString(f)), nil
		}
		return str(toFixed(f, int(digits))), nil
	})
	r.Method(proto, "toExponential", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "toExponential")
		if err != nil {
			return heap.Undefined, err
		}
		digits, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return str(heap.NumberToString(f)), nil
		}
		if digits < 0 || digits > 100 {
			return heap.Undefined, r.NewRangeError("toExponential() argument must be between 0 and 100")
		}
		if arg(args, 0).IsUndefined() {
			return str(jsExponent(strconv.FormatFloat(f, 'e', -1, 64))), nil
		}
		return str(toExponential(f, int(digits))), nil
	})
	r.Method(proto, "toPrecision", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := thisNumber(r, this, "toPrecision")
		if err != nil {
			return heap.Undefined, err
		}
		if arg(args, 0).IsUndefined() {
			return str(heap.NumberToString(f)), nil
		}
		p, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return str(heap.NumberToString(f)), nil
		}
		if p < 1 || p > 100 {
			return heap.Undefined, r.NewRangeError("toPrecision() argument must be between 1 and 100")
		}
		return str(toPrecision(f, int(p))), nil
	})

	return ctx.DefineGlobal("Number", heap.ObjectValue(ctor))
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

func parseFloat(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
	s, err := toStr(r, arg(args, 0))
	if err != nil {
		return heap.Undefined, err
	}
	s = heap.TrimLeft(s)
	for _, inf := range []string{"Infinity", "+Infinity", "-Infinity"} {
		if strings.HasPrefix(s, inf) {
			if inf[0] == '-' {
				return num(math.Inf(-1)), nil
			}
			return num(math.Inf(1)), nil
		}
	}
	// longest prefix that is a decimal literal
	end, seenDigit, seenDot, seenExp := 0, false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			if seenDigit {
				end = i + 1
			}
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return heap.NaN, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return num(f), nil
		}
		return heap.NaN, nil
	}
	return num(f), nil
}

func parseInt(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
	s, err := toStr(r, arg(args, 0))
	if err != nil {
		return heap.Undefined, err
	}
	rf, err := toNum(r, arg(args, 1))
	if err != nil {
		return heap.Undefined, err
	}
	radix := int(heap.ToInt32(rf))
	s = heap.TrimSpace(s)
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return heap.NaN, nil
		}
		stripPrefix = radix == 16
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return heap.NaN, nil
	}
	digits := s[:end]
	if v, err := strconv.ParseInt(digits, radix, 64); err == nil && v <= 1<<53 {
		return num(sign * float64(v)), nil
	}
	b, ok := new(big.Int).SetString(digits, radix)
	if !ok {
		return heap.NaN, nil
	}
	f, _ := new(big.Float).SetInt(b).Float64()
	return num(sign * f), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// numberToRadix formats f in radix 2..36 with up to 52 fractional digits.
func numberToRadix(f float64, radix int) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f < 0 {
			return "-Infinity"
		}
		return "Infinity"
	}
	neg := f < 0
	f = math.Abs(f)
	ip, fp := math.Modf(f)
	var intPart string
	if ip < 1<<63 {
		intPart = strconv.FormatUint(uint64(ip), radix)
	} else {
		b, _ := new(big.Float).SetFloat64(ip).Int(nil)
		intPart = b.Text(radix)
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(intPart)
	if fp > 0 {
		b.WriteByte('.')
		for i := 0; i < 52 && fp > 0; i++ {
			fp *= float64(radix)
			d := int(fp)
			b.WriteByte("0123456789abcdefghijklmnopqrstuvwxyz"[d])
			fp -= float64(d)
		}
	}
	return b.String()
}

// decimalDigits is the exact decimal expansion of a finite non-negative
// float: value = 0.digits * 10^point.
type decimalDigits struct {
	digits []byte
	point  int
}

func exactDecimal(f float64) decimalDigits {
	text := new(big.Float).SetFloat64(f).Text('f', 1100)
	intPart, frac, _ := strings.Cut(text, ".")
	all := strings.TrimRight(intPart+frac, "0")
	point := len(intPart)
	trimmed := strings.TrimLeft(all, "0")
	point -= len(all) - len(trimmed)
	if trimmed == "" {
		return decimalDigits{point: 1}
	}
	return decimalDigits{digits: []byte(trimmed), point: point}
}

// round keeps n digits, rounding half away from zero.
func (d decimalDigits) round(n int) decimalDigits {
	if n < 0 {
		return decimalDigits{point: d.point}
	}
	if n >= len(d.digits) {
		out := append([]byte(nil), d.digits...)
		for len(out) < n {
			out = append(out, '0')
		}
		return decimalDigits{digits: out, point: d.point}
	}
	out := append([]byte(nil), d.digits[:n]...)
	if d.digits[n] >= '5' {
		i := n - 1
		for ; i >= 0; i-- {
			if out[i] < '9' {
				out[i]++
				break
			}
			out[i] = '0'
		}
		if i < 0 {
			out = append([]byte{'1'}, out...)
			out = out[:len(out)-1]
			if n == 0 {
				out = []byte{'1'}
			}
			return decimalDigits{digits: out, point: d.point + 1}
		}
	}
	return decimalDigits{digits: out, point: d.point}
}

func toFixed(f float64, frac int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	d := exactDecimal(f)
	if len(d.digits) == 0 {
		d.point = 0
	}
	keep := d.point + frac
	var rounded decimalDigits
	if keep < 0 {
		rounded = decimalDigits{point: d.point}
	} else {
		rounded = d.round(keep)
	}
	digits := string(rounded.digits)
	// pad so the digit string covers the integer part and frac digits
	point := rounded.point
	if point <= 0 {
		digits = strings.Repeat("0", 1-point) + digits
		point = 1
	}
	for len(digits) < point+frac {
		digits += "0"
	}
	intPart, fracPart := digits[:point], digits[point:point+frac]
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if sign != "" && strings.Trim(intPart+fracPart, "0") == "" {
		sign = ""
	}
	if frac == 0 {
		return sign + intPart
	}
	return sign + intPart + "." + fracPart
}

func toExponential(f float64, frac int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	if f == 0 {
		s := "0"
		if frac > 0 {
			s += "." + strings.Repeat("0", frac)
		}
		return sign + s + "e+0"
	}
	d := exactDecimal(f).round(frac + 1)
	return sign + formatExponent(d, frac+1)
}

func formatExponent(d decimalDigits, n int) string {
	digits := string(d.digits[:n])
	s := digits[:1]
	if n > 1 {
		s += "." + digits[1:]
	}
	e := d.point - 1
	if e < 0 {
		return s + "e-" + strconv.Itoa(-e)
	}
	return s + "e+" + strconv.Itoa(e)
}

func toPrecision(f float64, p int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	if f == 0 {
		s := "0"
		if p > 1 {
			s += "." + strings.Repeat("0", p-1)
		}
		return sign + s
	}
	d := exactDecimal(f).round(p)
	e := d.point - 1
	if e < -6 || e >= p {
		return sign + formatExponent(d, p)
	}
	digits := string(d.digits[:p])
	if e >= 0 {
		if e+1 == p {
			return sign + digits
		}
		return sign + digits[:e+1] + "." + digits[e+1:]
	}
	return sign + "0." + strings.Repeat("0", -e-1) + digits
}

// jsExponent rewrites Go's exponent form (1.5e+02) to JS form (1.5e+2).
func jsExponent(s string) string {
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + sign + exp
}

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string { return "Boolean" }

func (b *BooleanInitializer) Priority() int { return PriorityBoolean }

func thisBoolean(r *realm.Realm, this heap.Value, method string) (bool, error) {
	if this.IsBoolean() {
		return this.AsBoolean(), nil
	}
	if o := this.AsObject(); o != nil {
		if v, ok := o.PrimitiveValue(); ok && v.IsBoolean() {
			return v.AsBoolean(), nil
		}
	}
	return false, r.NewTypeError("Boolean.prototype.%s requires that 'this' be a Boolean", method)
}

func (b *BooleanInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObjectOf("Boolean", r.Intrinsic(realm.ObjectPrototype), &heap.PrimitiveBox{Value: heap.False})
	if err := ctx.Intrinsic(realm.BooleanPrototype, proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("Boolean", 1,
		func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
			return heap.BooleanValue(heap.ToBoolean(arg(args, 0))), nil
		},
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			p, err := protoFromCtor(r, newTarget, realm.BooleanPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			v := heap.BooleanValue(heap.ToBoolean(arg(args, 0)))
			return heap.ObjectValue(r.Heap.NewObjectOf("Boolean", p, &heap.PrimitiveBox{Value: v})), nil
		}, proto)
	r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v, err := thisBoolean(r, this, "toString")
		if err != nil {
			return heap.Undefined, err
		}
		return str(strconv.FormatBool(v)), nil
	})
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v, err := thisBoolean(r, this, "valueOf")
		return heap.BooleanValue(v), err
	})
	return ctx.DefineGlobal("Boolean", heap.ObjectValue(ctor))
}

type BigIntInitializer struct{}

func (b *BigIntInitializer) Name() string { return "BigInt" }

func (b *BigIntInitializer) Priority() int { return PriorityBigInt }

func thisBigInt(r *realm.Realm, this heap.Value, method string) (*big.Int, error) {
	if this.IsBigInt() {
		return this.AsBigInt(), nil
	}
	if o := this.AsObject(); o != nil {
		if v, ok := o.PrimitiveValue(); ok && v.IsBigInt() {
			return v.AsBigInt(), nil
		}
	}
	return nil, r.NewTypeError("BigInt.prototype.%s requires that 'this' be a BigInt", method)
}

// toBigInt implements ToBigInt.
func toBigInt(r *realm.Realm, v heap.Value) (*big.Int, error) {
	p, err := r.Heap.ToPrimitive(v, "number")
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsBigInt():
		return p.AsBigInt(), nil
	case p.IsBoolean():
		if p.AsBoolean() {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	case p.IsString():
		b, ok := heap.StringToBigInt(p.AsString())
		if !ok {
			return nil, r.NewSyntaxError("Cannot convert %s to a BigInt", p.AsString())
		}
		return b, nil
	}
	return nil, r.NewTypeError("Cannot convert %s to a BigInt", p.Inspect())
}

func (b *BigIntInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.BigIntPrototype, proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("BigInt", 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			p, err := r.Heap.ToPrimitive(arg(args, 0), "number")
			if err != nil {
				return heap.Undefined, err
			}
			if p.IsNumber() {
				f := p.AsNumber()
				if !isIntegral(f) {
					return heap.Undefined, r.NewRangeError("The number %s cannot be converted to a BigInt because it is not an integer", heap.NumberToString(f))
				}
				i, _ := new(big.Float).SetFloat64(f).Int(nil)
				return heap.NewBigInt(i), nil
			}
			i, err := toBigInt(r, p)
			if err != nil {
				return heap.Undefined, err
			}
			return heap.NewBigInt(i), nil
		}, nil, proto)

	asN := func(signed bool) realm.NativeFunc {
		return func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			bits, err := toInteger(r, arg(args, 0))
			if err != nil {
				return heap.Undefined, err
			}
			if bits < 0 || bits > 1<<53-1 {
				return heap.Undefined, r.NewRangeError("Invalid value: not (convertible to) a safe integer")
			}
			v, err := toBigInt(r, arg(args, 1))
			if err != nil {
				return heap.Undefined, err
			}
			mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
			res := new(big.Int).Mod(v, mod)
			if signed && bits > 0 && res.Cmp(new(big.Int).Rsh(mod, 1)) >= 0 {
				res.Sub(res, mod)
			}
			return heap.NewBigInt(res), nil
		}
	}
	r.Method(ctor, "asIntN", 2, asN(true))
	r.Method(ctor, "asUintN", 2, asN(false))

	r.Method(proto, "toString", 0, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v, err := thisBigInt(r, this, "toString")
		if err != nil {
			return heap.Undefined, err
		}
		radix := 10.0
		if !arg(args, 0).IsUndefined() {
			if radix, err = toInteger(r, arg(args, 0)); err != nil {
				return heap.Undefined, err
			}
		}
		if radix < 2 || radix > 36 {
			return heap.Undefined, r.NewRangeError("toString() radix must be between 2 and 36")
		}
		return str(v.Text(int(radix))), nil
	})
	r.Method(proto, "toLocaleString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v, err := thisBigInt(r, this, "toLocaleString")
		if err != nil {
			return heap.Undefined, err
		}
		return str(humanize.BigComma(v)), nil
	})
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v, err := thisBigInt(r, this, "valueOf")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.NewBigInt(v), nil
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("BigInt"), heap.Configurable))
	return ctx.DefineGlobal("BigInt", heap.ObjectValue(ctor))
}
