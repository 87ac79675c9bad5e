package builtins

import (
	"math"
	"math/big"
	"math/bits"
	"math/rand"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string { return "Math" }

func (m *MathInitializer) Priority() int { return PriorityMath }

// unary wraps a float function as a one-argument builtin.
func unary(fn func(float64) float64) realm.NativeFunc {
	return func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := toNum(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return num(fn(f)), nil
	}
}

func binary(fn func(a, b float64) float64) realm.NativeFunc {
	return func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		a, err := toNum(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		b, err := toNum(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return num(fn(a, b)), nil
	}
}

func numbers(r *realm.Realm, args []heap.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := toNum(r, a)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// jsRound rounds half up, keeping -0 for values in [-0.5, -0].
func jsRound(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == math.Trunc(f) {
		return f
	}
	if f < 0 && f >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(f + 0.5)
}

// jsPow differs from math.Pow where the base is ±1 and the exponent is
// not finite, or the exponent is NaN.
func jsPow(a, b float64) float64 {
	if math.IsNaN(b) {
		return math.NaN()
	}
	if math.Abs(a) == 1 && math.IsInf(b, 0) {
		return math.NaN()
	}
	return math.Pow(a, b)
}

func (m *MathInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	mo := r.NewObject()
	mo.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Math"), heap.Configurable))
	for name, v := range map[string]float64{
		"E": math.E, "LN10": math.Ln10, "LN2": math.Ln2, "LOG10E": math.Log10E,
		"LOG2E": math.Log2E, "PI": math.Pi, "SQRT1_2": math.Sqrt2 / 2, "SQRT2": math.Sqrt2,
	} {
		mo.DefineReadOnly(name, num(v))
	}
	for name, fn := range map[string]func(float64) float64{
		"abs": math.Abs, "acos": math.Acos, "acosh": math.Acosh, "asin": math.Asin,
		"asinh": math.Asinh, "atan": math.Atan, "atanh": math.Atanh, "cbrt": math.Cbrt,
		"ceil": math.Ceil, "cos": math.Cos, "cosh": math.Cosh, "exp": math.Exp,
		"expm1": math.Expm1, "floor": math.Floor, "log": math.Log, "log1p": math.Log1p,
		"log10": math.Log10, "log2": math.Log2, "sin": math.Sin, "sinh": math.Sinh,
		"sqrt": math.Sqrt, "tan": math.Tan, "tanh": math.Tanh, "trunc": math.Trunc,
		"round":  jsRound,
		"fround": func(f float64) float64 { return float64(float32(f)) },
		"sign": func(f float64) float64 {
			switch {
			case f > 0:
				return 1
			case f < 0:
				return -1
			}
			return f
		},
		"clz32": func(f float64) float64 { return float64(bits.LeadingZeros32(heap.ToUint32(f))) },
	} {
		r.Method(mo, name, 1, unary(fn))
	}
	r.Method(mo, "atan2", 2, binary(math.Atan2))
	r.Method(mo, "pow", 2, binary(jsPow))
	r.Method(mo, "imul", 2, binary(func(a, b float64) float64 {
		return float64(heap.ToInt32(a) * heap.ToInt32(b))
	}))
	r.Method(mo, "random", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		return num(rand.Float64()), nil
	})
	r.Method(mo, "max", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fs, err := numbers(r, args)
		if err != nil {
			return heap.Undefined, err
		}
		res := math.Inf(-1)
		for _, f := range fs {
			if math.IsNaN(f) {
				return heap.NaN, nil
			}
			if f > res || (f == 0 && res == 0 && !math.Signbit(f)) {
				res = f
			}
		}
		return num(res), nil
	})
	r.Method(mo, "min", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fs, err := numbers(r, args)
		if err != nil {
			return heap.Undefined, err
		}
		res := math.Inf(1)
		for _, f := range fs {
			if math.IsNaN(f) {
				return heap.NaN, nil
			}
			if f < res || (f == 0 && res == 0 && math.Signbit(f)) {
				res = f
			}
		}
		return num(res), nil
	})
	r.Method(mo, "hypot", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fs, err := numbers(r, args)
		if err != nil {
			return heap.Undefined, err
		}
		sum := 0.0
		nan := false
		for _, f := range fs {
			if math.IsInf(f, 0) {
				return num(math.Inf(1)), nil
			}
			if math.IsNaN(f) {
				nan = true
			}
			sum += f * f
		}
		if nan {
			return heap.NaN, nil
		}
		return num(math.Sqrt(sum)), nil
	})
	r.Method(mo, "sumPrecise", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		var acc exactSum
		err := iterate(r, arg(args, 0), func(v heap.Value) (bool, error) {
			if !v.IsNumber() {
				return false, r.NewTypeError("Math.sumPrecise requires numbers")
			}
			acc.add(v.AsNumber())
			return true, nil
		})
		if err != nil {
			return heap.Undefined, err
		}
		return num(acc.result()), nil
	})
	return ctx.DefineGlobal("Math", heap.ObjectValue(mo))
}

// sumPrec holds any sum of float64 values without rounding: the finite
// range spans 2098 bits and the rest leaves room for carries.
const sumPrec = 2200

// exactSum accumulates float64 values exactly and rounds once at the end.
type exactSum struct {
	sum        *big.Float
	nan        bool
	posInf     bool
	negInf     bool
	allNegZero bool
	seen       bool
}

func (s *exactSum) add(f float64) {
	if !s.seen {
		s.seen, s.allNegZero = true, true
		s.sum = new(big.Float).SetPrec(sumPrec)
	}
	switch {
	case math.IsNaN(f):
		s.nan = true
	case math.IsInf(f, 1):
		s.posInf = true
	case math.IsInf(f, -1):
		s.negInf = true
	default:
		if f != 0 || !math.Signbit(f) {
			s.allNegZero = false
		}
		s.sum.Add(s.sum, new(big.Float).SetFloat64(f))
	}
}

func (s *exactSum) result() float64 {
	switch {
	case s.nan || s.posInf && s.negInf:
		return math.NaN()
	case s.posInf:
		return math.Inf(1)
	case s.negInf:
		return math.Inf(-1)
	case !s.seen || s.allNegZero:
		return math.Copysign(0, -1)
	}
	f, _ := s.sum.Float64()
	if f == 0 {
		return 0
	}
	return f
}
