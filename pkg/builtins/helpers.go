package builtins

import (
	"math"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

var arg = realm.Arg

func toStr(r *realm.Realm, v heap.Value) (string, error) {
	return r.Heap.ToString(v)
}

func toNum(r *realm.Realm, v heap.Value) (float64, error) {
	return r.Heap.ToNumber(v)
}

// toInteger is ToIntegerOrInfinity.
func toInteger(r *realm.Realm, v heap.Value) (float64, error) {
	if v.IsUndefined() {
		return 0, nil
	}
	f, err := r.Heap.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return heap.ToIntegerOrInfinity(f), nil
}

// relativeIndex resolves a possibly negative position argument against
// length, clamped to [0, length].
func relativeIndex(r *realm.Realm, v heap.Value, length, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	f, err := toInteger(r, v)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		f += float64(length)
		if f < 0 {
			f = 0
		}
	}
	if f > float64(length) {
		f = float64(length)
	}
	return int(f), nil
}

// lengthOf is LengthOfArrayLike.
func lengthOf(r *realm.Realm, o *heap.Object) (int, error) {
	if o.IsArray() {
		return int(o.Len()), nil
	}
	v, err := r.Heap.Get(o, heap.StringKey("length"), heap.ObjectValue(o))
	if err != nil {
		return 0, err
	}
	f, err := toInteger(r, v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, nil
	}
	return int(math.Min(f, 1<<53-1)), nil
}

func index(i int) heap.PropertyKey { return heap.IndexKey(uint32(i)) }

func getIndex(r *realm.Realm, o *heap.Object, i int) (heap.Value, error) {
	return r.Heap.Get(o, index(i), heap.ObjectValue(o))
}

func setIndex(r *realm.Realm, o *heap.Object, i int, v heap.Value) error {
	return r.Set(heap.ObjectValue(o), index(i), v, true)
}

func requireCallable(r *realm.Realm, v heap.Value) (*heap.Object, error) {
	if !v.IsCallable() {
		return nil, r.NewTypeError("%s is not a function", v.Inspect())
	}
	return v.AsObject(), nil
}

func newArray(r *realm.Realm, vals []heap.Value) heap.Value {
	return heap.ObjectValue(r.NewArray(vals))
}

func str(s string) heap.Value { return heap.NewString(s) }

func num(f float64) heap.Value { return heap.NumberValue(f) }

// iterate drives the iteration protocol over v. fn returns false to stop
// early, which closes the iterator.
func iterate(r *realm.Realm, v heap.Value, fn func(heap.Value) (bool, error)) error {
	if o := v.AsObject(); o != nil && o.IsArray() && o.IsDense() && hasArrayIterator(r, o) {
		for i := uint32(0); i < o.Len(); i++ {
			more, err := fn(o.ElementAt(i))
			if err != nil || !more {
				return err
			}
		}
		return nil
	}
	method, err := r.Heap.GetMethod(v, heap.SymbolKey(heap.SymIterator), r.ProtoOf(v))
	if err != nil {
		return err
	}
	if method == nil {
		return r.NewTypeError("%s is not iterable", v.Inspect())
	}
	it, err := r.Call(heap.ObjectValue(method), v)
	if err != nil {
		return err
	}
	if !it.IsObject() {
		return r.NewTypeError("Result of the Symbol.iterator method is not an object")
	}
	next, err := r.Get(it, "next")
	if err != nil {
		return err
	}
	for {
		res, err := r.Call(next, it)
		if err != nil {
			return err
		}
		ro := res.AsObject()
		if ro == nil {
			return r.NewTypeError("Iterator result %s is not an object", res.Inspect())
		}
		done, err := r.Get(res, "done")
		if err != nil {
			return err
		}
		if heap.ToBoolean(done) {
			return nil
		}
		val, err := r.Get(res, "value")
		if err != nil {
			return err
		}
		more, ferr := fn(val)
		if ferr != nil || !more {
			if cerr := closeIterator(r, it); ferr == nil {
				return cerr
			}
			return ferr
		}
	}
}

func closeIterator(r *realm.Realm, it heap.Value) error {
	ret, err := r.Heap.GetMethod(it, heap.StringKey("return"), r.ProtoOf(it))
	if err != nil || ret == nil {
		return err
	}
	_, err = r.Call(heap.ObjectValue(ret), it)
	return err
}

// hasArrayIterator reports whether iterating o would use the builtin array
// iterator, which allows walking the elements directly.
func hasArrayIterator(r *realm.Realm, o *heap.Object) bool {
	values := r.Intrinsic("ArrayValues")
	if values == nil {
		return false
	}
	for cur := o; cur != nil; cur = cur.Prototype() {
		if d, ok := cur.GetOwnProperty(heap.SymbolKey(heap.SymIterator)); ok {
			return !d.IsAccessor() && d.Value.AsObject() == values
		}
	}
	return false
}

// collect gathers the values produced by iterating v.
func collect(r *realm.Realm, v heap.Value) ([]heap.Value, error) {
	var out []heap.Value
	err := iterate(r, v, func(x heap.Value) (bool, error) {
		out = append(out, x)
		return true, nil
	})
	return out, err
}

// createListFromArrayLike reads elements 0..length-1 of v.
func createListFromArrayLike(r *realm.Realm, v heap.Value) ([]heap.Value, error) {
	if v.IsNullish() {
		return nil, nil
	}
	o := v.AsObject()
	if o == nil {
		return nil, r.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	n, err := lengthOf(r, o)
	if err != nil {
		return nil, err
	}
	out := make([]heap.Value, n)
	for i := 0; i < n; i++ {
		if out[i], err = getIndex(r, o, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// protoFromCtor reads the prototype property of newTarget, falling back to
// the named intrinsic.
func protoFromCtor(r *realm.Realm, newTarget *heap.Object, fallback string) (*heap.Object, error) {
	if newTarget != nil {
		p, err := r.Heap.Get(newTarget, heap.StringKey("prototype"), heap.ObjectValue(newTarget))
		if err != nil {
			return nil, err
		}
		if p.IsObject() {
			return p.AsObject(), nil
		}
	}
	return r.Intrinsic(fallback), nil
}

// pin makes values captured by a Go closure visible to the collector by
// storing them under private keys on the function object that holds the
// closure.
func pin(fn *heap.Object, vals ...heap.Value) {
	for _, v := range vals {
		fn.DefineHiddenKey(heap.SymbolKey(&heap.Symbol{Description: "pin", Private: true}), v)
	}
}
