package vm

import (
	"math"
	"math/big"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// binOp identifies a binary operator. The order matches the opcode
// triples from OpAddVarVar to OpInstanceOfRegReg.
type binOp uint8

const (
	opAdd binOp = iota
	opSub
	opMul
	opDiv
	opMod
	opExp
	opBitAnd
	opBitOr
	opBitXor
	opShl
	opShr
	opUshr
	opEq
	opNeq
	opStrictEq
	opStrictNeq
	opLt
	opLte
	opGt
	opGte
	opIn
	opInstanceOf
)

var binOpNames = [...]string{"+", "-", "*", "/", "%", "**", "&", "|", "^", "<<", ">>", ">>>",
	"==", "!=", "===", "!==", "<", "<=", ">", ">=", "in", "instanceof"}

func (op binOp) String() string { return binOpNames[op] }

// binary evaluates a op b.
func (vm *VM) binary(op binOp, a, b heap.Value) (heap.Value, error) {
	switch op {
	case opAdd:
		return vm.add(a, b)
	case opEq, opNeq:
		eq, err := vm.h.LooseEquals(a, b)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(eq == (op == opEq)), nil
	case opStrictEq:
		return heap.BooleanValue(heap.StrictEquals(a, b)), nil
	case opStrictNeq:
		return heap.BooleanValue(!heap.StrictEquals(a, b)), nil
	case opLt:
		return vm.compare(a, b, true, false)
	case opGt:
		return vm.compare(b, a, false, false)
	case opLte:
		return vm.compare(b, a, false, true)
	case opGte:
		return vm.compare(a, b, true, true)
	case opIn:
		return vm.in(a, b)
	case opInstanceOf:
		ok, err := vm.instanceOf(a, b)
		return heap.BooleanValue(ok), err
	}
	return vm.arith(op, a, b)
}

func (vm *VM) add(a, b heap.Value) (heap.Value, error) {
	if a.Kind() == heap.KindNumber && b.Kind() == heap.KindNumber {
		return heap.NumberValue(a.AsNumber() + b.AsNumber()), nil
	}
	pa, err := vm.h.ToPrimitive(a, "default")
	if err != nil {
		return heap.Undefined, err
	}
	pb, err := vm.h.ToPrimitive(b, "default")
	if err != nil {
		return heap.Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		sa, err := vm.h.ToString(pa)
		if err != nil {
			return heap.Undefined, err
		}
		sb, err := vm.h.ToString(pb)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.NewString(sa + sb), nil
	}
	return vm.arith(opAdd, pa, pb)
}

// arith evaluates numeric operators on Numbers or BigInts.
func (vm *VM) arith(op binOp, a, b heap.Value) (heap.Value, error) {
	na, err := vm.h.ToNumeric(a)
	if err != nil {
		return heap.Undefined, err
	}
	nb, err := vm.h.ToNumeric(b)
	if err != nil {
		return heap.Undefined, err
	}
	aBig, bBig := na.Kind() == heap.KindBigInt, nb.Kind() == heap.KindBigInt
	if aBig || bBig {
		if !(aBig && bBig) {
			return heap.Undefined, vm.realm.NewTypeError("Cannot mix BigInt and other types, use explicit conversions")
		}
		return vm.bigArith(op, na.AsBigInt(), nb.AsBigInt())
	}
	x, y := na.AsNumber(), nb.AsNumber()
	switch op {
	case opAdd:
		return heap.NumberValue(x + y), nil
	case opSub:
		return heap.NumberValue(x - y), nil
	case opMul:
		return heap.NumberValue(x * y), nil
	case opDiv:
		return heap.NumberValue(x / y), nil
	case opMod:
		return heap.NumberValue(jsMod(x, y)), nil
	case opExp:
		return heap.NumberValue(jsPow(x, y)), nil
	case opBitAnd:
		return heap.IntValue(int(heap.ToInt32(x) & heap.ToInt32(y))), nil
	case opBitOr:
		return heap.IntValue(int(heap.ToInt32(x) | heap.ToInt32(y))), nil
	case opBitXor:
		return heap.IntValue(int(heap.ToInt32(x) ^ heap.ToInt32(y))), nil
	case opShl:
		return heap.IntValue(int(heap.ToInt32(x) << (heap.ToUint32(y) & 31))), nil
	case opShr:
		return heap.IntValue(int(heap.ToInt32(x) >> (heap.ToUint32(y) & 31))), nil
	case opUshr:
		return heap.NumberValue(float64(heap.ToUint32(x) >> (heap.ToUint32(y) & 31))), nil
	}
	return heap.Undefined, vm.realm.NewTypeError("unsupported operator %s", op)
}

func jsMod(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || y == 0 {
		return math.NaN()
	}
	if math.IsInf(y, 0) {
		return x
	}
	if x == 0 {
		return x
	}
	r := math.Mod(x, y)
	if r == 0 {
		return math.Copysign(0, x)
	}
	return r
}

func jsPow(x, y float64) float64 {
	if math.IsNaN(y) {
		return math.NaN()
	}
	if (x == 1 || x == -1) && math.IsInf(y, 0) {
		return math.NaN()
	}
	return math.Pow(x, y)
}

func (vm *VM) bigArith(op binOp, x, y *big.Int) (heap.Value, error) {
	r := vm.realm
	z := new(big.Int)
	switch op {
	case opAdd:
		z.Add(x, y)
	case opSub:
		z.Sub(x, y)
	case opMul:
		z.Mul(x, y)
	case opDiv:
		if y.Sign() == 0 {
			return heap.Undefined, r.NewRangeError("Division by zero")
		}
		z.Quo(x, y)
	case opMod:
		if y.Sign() == 0 {
			return heap.Undefined, r.NewRangeError("Division by zero")
		}
		z.Rem(x, y)
	case opExp:
		if y.Sign() < 0 {
			return heap.Undefined, r.NewRangeError("Exponent must be non-negative")
		}
		if !y.IsInt64() || y.Int64() > 1<<20 {
			return heap.Undefined, r.NewRangeError("Maximum BigInt size exceeded")
		}
		z.Exp(x, y, nil)
	case opBitAnd:
		z.And(x, y)
	case opBitOr:
		z.Or(x, y)
	case opBitXor:
		z.Xor(x, y)
	case opShl, opShr:
		if !y.IsInt64() || y.Int64() > 1<<30 || y.Int64() < -(1<<30) {
			return heap.Undefined, r.NewRangeError("Maximum BigInt size exceeded")
		}
		n := y.Int64()
		if op == opShr {
			n = -n
		}
		if n >= 0 {
			z.Lsh(x, uint(n))
		} else {
			z.Rsh(x, uint(-n))
		}
	case opUshr:
		return heap.Undefined, r.NewTypeError("BigInts have no unsigned right shift, use >> instead")
	}
	return heap.NewBigInt(z), nil
}

// compare implements the abstract relational comparison of a < b. With
// negate set the result is inverted unless it is undefined, which yields
// the <= and >= forms. leftFirst controls conversion order.
func (vm *VM) compare(a, b heap.Value, leftFirst, negate bool) (heap.Value, error) {
	var pa, pb heap.Value
	var err error
	if leftFirst {
		if pa, err = vm.h.ToPrimitive(a, "number"); err != nil {
			return heap.Undefined, err
		}
		if pb, err = vm.h.ToPrimitive(b, "number"); err != nil {
			return heap.Undefined, err
		}
	} else {
		if pb, err = vm.h.ToPrimitive(b, "number"); err != nil {
			return heap.Undefined, err
		}
		if pa, err = vm.h.ToPrimitive(a, "number"); err != nil {
			return heap.Undefined, err
		}
	}
	less, undefined, err := vm.lessThan(pa, pb)
	if err != nil {
		return heap.Undefined, err
	}
	if undefined {
		return heap.False, nil
	}
	if negate {
		less = !less
	}
	return heap.BooleanValue(less), nil
}

func (vm *VM) lessThan(a, b heap.Value) (less, undefined bool, err error) {
	if a.IsString() && b.IsString() {
		return compareStrings(a.AsString(), b.AsString()) < 0, false, nil
	}
	if a.Kind() == heap.KindBigInt && b.IsString() {
		y, ok := heap.StringToBigInt(b.AsString())
		if !ok {
			return false, true, nil
		}
		return a.AsBigInt().Cmp(y) < 0, false, nil
	}
	if a.IsString() && b.Kind() == heap.KindBigInt {
		x, ok := heap.StringToBigInt(a.AsString())
		if !ok {
			return false, true, nil
		}
		return x.Cmp(b.AsBigInt()) < 0, false, nil
	}
	na, err := vm.h.ToNumeric(a)
	if err != nil {
		return false, false, err
	}
	nb, err := vm.h.ToNumeric(b)
	if err != nil {
		return false, false, err
	}
	switch {
	case na.Kind() == heap.KindBigInt && nb.Kind() == heap.KindBigInt:
		return na.AsBigInt().Cmp(nb.AsBigInt()) < 0, false, nil
	case na.Kind() == heap.KindBigInt:
		c, ok := cmpBigFloat(na.AsBigInt(), nb.AsNumber())
		return c < 0, !ok, nil
	case nb.Kind() == heap.KindBigInt:
		c, ok := cmpBigFloat(nb.AsBigInt(), na.AsNumber())
		return c > 0, !ok, nil
	}
	x, y := na.AsNumber(), nb.AsNumber()
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, true, nil
	}
	return x < y, false, nil
}

// cmpBigFloat compares a BigInt with a Number; ok is false for NaN.
func cmpBigFloat(x *big.Int, f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	if math.IsInf(f, 1) {
		return -1, true
	}
	if math.IsInf(f, -1) {
		return 1, true
	}
	bf := new(big.Float).SetInt(x)
	return bf.Cmp(big.NewFloat(f)), true
}

// compareStrings orders strings by UTF-16 code units.
func compareStrings(a, b string) int {
	if isASCII(a) && isASCII(b) {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	ua, ub := heap.ToUTF16(a), heap.ToUTF16(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (vm *VM) in(key, target heap.Value) (heap.Value, error) {
	o := target.AsObject()
	if o == nil {
		ks, _ := vm.h.ToString(key)
		return heap.Undefined, vm.realm.NewTypeError("Cannot use 'in' operator to search for '%s' in %s", ks, target.Inspect())
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return heap.Undefined, err
	}
	return heap.BooleanValue(vm.h.HasProperty(o, k)), nil
}

// instanceOf implements InstanceofOperator.
func (vm *VM) instanceOf(v, target heap.Value) (bool, error) {
	r := vm.realm
	c := target.AsObject()
	if c == nil {
		return false, r.NewTypeError("Right-hand side of 'instanceof' is not an object")
	}
	m, err := vm.h.GetMethod(target, heap.SymbolKey(heap.SymHasInstance), c.Prototype())
	if err != nil {
		return false, err
	}
	if m != nil && m != r.Intrinsic("FunctionHasInstance") {
		res, err := vm.call(m, target, []heap.Value{v})
		if err != nil {
			return false, err
		}
		return heap.ToBoolean(res), nil
	}
	if !c.IsCallable() {
		return false, r.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	return vm.OrdinaryHasInstance(c, v)
}

// OrdinaryHasInstance walks the prototype chain of v looking for
// c.prototype.
func (vm *VM) OrdinaryHasInstance(c *heap.Object, v heap.Value) (bool, error) {
	if b, ok := c.Internal.(*realm.BoundFunction); ok {
		return vm.instanceOf(v, heap.ObjectValue(b.Target))
	}
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	pv, err := vm.h.Get(c, heap.StringKey("prototype"), heap.ObjectValue(c))
	if err != nil {
		return false, err
	}
	proto := pv.AsObject()
	if proto == nil {
		return false, vm.realm.NewTypeError("Function has non-object prototype '%s' in instanceof check", pv.Inspect())
	}
	for cur := o.Prototype(); cur != nil; cur = cur.Prototype() {
		if cur == proto {
			return true, nil
		}
	}
	return false, nil
}

func (vm *VM) typeOf(v heap.Value) heap.Value {
	return heap.NewString(v.TypeName())
}

// unary operators

func (vm *VM) negate(v heap.Value) (heap.Value, error) {
	n, err := vm.h.ToNumeric(v)
	if err != nil {
		return heap.Undefined, err
	}
	if n.Kind() == heap.KindBigInt {
		return heap.NewBigInt(new(big.Int).Neg(n.AsBigInt())), nil
	}
	return heap.NumberValue(-n.AsNumber()), nil
}

func (vm *VM) bitNot(v heap.Value) (heap.Value, error) {
	n, err := vm.h.ToNumeric(v)
	if err != nil {
		return heap.Undefined, err
	}
	if n.Kind() == heap.KindBigInt {
		return heap.NewBigInt(new(big.Int).Not(n.AsBigInt())), nil
	}
	return heap.IntValue(int(^heap.ToInt32(n.AsNumber()))), nil
}

// increment adds delta (1 or -1) to a numeric value.
func (vm *VM) increment(v heap.Value, delta int) (heap.Value, error) {
	if v.Kind() == heap.KindNumber {
		return heap.NumberValue(v.AsNumber() + float64(delta)), nil
	}
	n, err := vm.h.ToNumeric(v)
	if err != nil {
		return heap.Undefined, err
	}
	if n.Kind() == heap.KindBigInt {
		return heap.NewBigInt(new(big.Int).Add(n.AsBigInt(), big.NewInt(int64(delta)))), nil
	}
	return heap.NumberValue(n.AsNumber() + float64(delta)), nil
}
