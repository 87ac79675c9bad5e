package builtins

import (
	"math"
	"sort"
	"strings"
	"sync"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string { return "Array" }

func (a *ArrayInitializer) Priority() int { return PriorityArray }

func (a *ArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewArray(r.Intrinsic(realm.ObjectPrototype), nil)
	if err := ctx.Intrinsic(realm.ArrayPrototype, proto); err != nil {
		return err
	}

	ctor := r.NewNativeConstructor("Array", 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			return constructArray(r, args, nil)
		},
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			return constructArray(r, args, newTarget)
		}, proto)
	r.Method(ctor, "isArray", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		o := arg(args, 0).AsObject()
		return heap.BooleanValue(o != nil && o.IsArray()), nil
	})
	r.Method(ctor, "of", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return newArray(r, args), nil
	})
	r.Method(ctor, "from", 1, arrayFrom)
	r.Getter(ctor, heap.SymbolKey(heap.SymSpecies), func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})

	m := func(name string, arity int, fn realm.NativeFunc) { r.Method(proto, name, arity, fn) }
	m("at", 1, arrayAt)
	m("concat", 1, arrayConcat)
	m("copyWithin", 2, arrayCopyWithin)
	m("entries", 0, arrayIterMethod(iterEntries))
	m("keys", 0, arrayIterMethod(iterKeys))
	m("every", 1, arrayPredicate(func(hit bool) (stop bool, result heap.Value) {
		if !hit {
			return true, heap.False
		}
		return false, heap.True
	}, heap.True))
	m("some", 1, arrayPredicate(func(hit bool) (bool, heap.Value) {
		if hit {
			return true, heap.True
		}
		return false, heap.False
	}, heap.False))
	m("fill", 1, arrayFill)
	m("filter", 1, arrayFilter)
	m("find", 1, arrayFind(false, false))
	m("findIndex", 1, arrayFind(true, false))
	m("findLast", 1, arrayFind(false, true))
	m("findLastIndex", 1, arrayFind(true, true))
	m("flat", 0, arrayFlat)
	m("flatMap", 1, arrayFlatMap)
	m("forEach", 1, arrayForEach)
	m("includes", 1, arrayIncludes)
	m("indexOf", 1, arrayIndexOf)
	m("lastIndexOf", 1, arrayLastIndexOf)
	m("join", 1, arrayJoin)
	m("map", 1, arrayMap)
	m("pop", 0, arrayPop)
	m("push", 1, arrayPush)
	m("reduce", 1, arrayReduce(false))
	m("reduceRight", 1, arrayReduce(true))
	m("reverse", 0, arrayReverse)
	m("shift", 0, arrayShift)
	m("unshift", 1, arrayUnshift)
	m("slice", 2, arraySlice)
	m("sort", 1, arraySort)
	m("splice", 2, arraySplice)
	m("toReversed", 0, arrayToReversed)
	m("toSorted", 1, arrayToSorted)
	m("toSpliced", 2, arrayToSpliced)
	m("with", 2, arrayWith)
	m("toString", 0, arrayToString)
	m("toLocaleString", 0, arrayJoin)

	values := r.Method(proto, "values", 0, arrayIterMethod(iterValues))
	proto.DefineHiddenKey(heap.SymbolKey(heap.SymIterator), heap.ObjectValue(values))
	if err := ctx.Intrinsic("ArrayValues", values); err != nil {
		return err
	}

	if err := ctx.Intrinsic(realm.ArrayConstructor, ctor); err != nil {
		return err
	}
	return ctx.DefineGlobal("Array", heap.ObjectValue(ctor))
}

func constructArray(r *realm.Realm, args []heap.Value, newTarget *heap.Object) (heap.Value, error) {
	proto, err := protoFromCtor(r, newTarget, realm.ArrayPrototype)
	if err != nil {
		return heap.Undefined, err
	}
	if len(args) == 1 && args[0].IsNumber() {
		n := args[0].AsNumber()
		if n < 0 || n != float64(uint32(n)) {
			return heap.Undefined, r.NewRangeError("Invalid array length")
		}
		a := r.Heap.NewArray(proto, nil)
		a.SetLength(uint32(n))
		return heap.ObjectValue(a), nil
	}
	return heap.ObjectValue(r.Heap.NewArray(proto, args)), nil
}

func arrayFrom(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
	items, mapFn, thisArg := arg(args, 0), arg(args, 1), arg(args, 2)
	if !mapFn.IsUndefined() && !mapFn.IsCallable() {
		return heap.Undefined, r.NewTypeError("%s is not a function", mapFn.Inspect())
	}
	if items.IsNullish() {
		return heap.Undefined, r.NewTypeError("%s is not iterable", items.Inspect())
	}
	var out []heap.Value
	mapped := func(v heap.Value, i int) (heap.Value, error) {
		if mapFn.IsUndefined() {
			return v, nil
		}
		return r.Call(mapFn, thisArg, v, heap.IntValue(i))
	}
	method, err := r.Heap.GetMethod(items, heap.SymbolKey(heap.SymIterator), r.ProtoOf(items))
	if err != nil {
		return heap.Undefined, err
	}
	if method != nil {
		err := iterate(r, items, func(v heap.Value) (bool, error) {
			mv, err := mapped(v, len(out))
			if err != nil {
				return false, err
			}
			out = append(out, mv)
			return true, nil
		})
		if err != nil {
			return heap.Undefined, err
		}
		return newArray(r, out), nil
	}
	list, err := createListFromArrayLike(r, items)
	if err != nil {
		return heap.Undefined, err
	}
	for i, v := range list {
		mv, err := mapped(v, i)
		if err != nil {
			return heap.Undefined, err
		}
		out = append(out, mv)
	}
	return newArray(r, out), nil
}

// arrayThis is ToObject(this) together with its length.
func arrayThis(r *realm.Realm, this heap.Value) (*heap.Object, int, error) {
	o, err := r.ToObject(this)
	if err != nil {
		return nil, 0, err
	}
	n, err := lengthOf(r, o)
	return o, n, err
}

func setLength(r *realm.Realm, o *heap.Object, n int) error {
	return r.Set(heap.ObjectValue(o), heap.StringKey("length"), heap.IntValue(n), true)
}

func hasIndex(r *realm.Realm, o *heap.Object, i int) bool {
	return r.Heap.HasProperty(o, index(i))
}

func deleteIndex(r *realm.Realm, o *heap.Object, i int) error {
	if !o.Delete(index(i)) {
		return r.NewTypeError("Cannot delete property '%d' of %s", i, heap.ObjectValue(o).Inspect())
	}
	return nil
}

func arrayAt(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	rel, err := toInteger(r, arg(args, 0))
	if err != nil {
		return heap.Undefined, err
	}
	if rel < 0 {
		rel += float64(n)
	}
	if rel < 0 || rel >= float64(n) {
		return heap.Undefined, nil
	}
	return getIndex(r, o, int(rel))
}

func isConcatSpreadable(v heap.Value) bool {
	o := v.AsObject()
	return o != nil && o.IsArray()
}

func arrayConcat(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, err := r.ToObject(this)
	if err != nil {
		return heap.Undefined, err
	}
	out := r.NewArray(nil)
	for _, item := range append([]heap.Value{heap.ObjectValue(o)}, args...) {
		if !isConcatSpreadable(item) {
			out.Append(item)
			continue
		}
		src := item.AsObject()
		n, err := lengthOf(r, src)
		if err != nil {
			return heap.Undefined, err
		}
		for i := 0; i < n; i++ {
			if !hasIndex(r, src, i) {
				out.AppendHole()
				continue
			}
			v, err := getIndex(r, src, i)
			if err != nil {
				return heap.Undefined, err
			}
			out.Append(v)
		}
	}
	return heap.ObjectValue(out), nil
}

func arrayCopyWithin(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	to, err := relativeIndex(r, arg(args, 0), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	from, err := relativeIndex(r, arg(args, 1), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	end, err := relativeIndex(r, arg(args, 2), n, n)
	if err != nil {
		return heap.Undefined, err
	}
	count := min(end-from, n-to)
	if count <= 0 {
		return heap.ObjectValue(o), nil
	}
	step := 1
	if from < to && to < from+count {
		step = -1
		from += count - 1
		to += count - 1
	}
	for ; count > 0; count-- {
		if hasIndex(r, o, from) {
			v, err := getIndex(r, o, from)
			if err != nil {
				return heap.Undefined, err
			}
			if err := setIndex(r, o, to, v); err != nil {
				return heap.Undefined, err
			}
		} else if err := deleteIndex(r, o, to); err != nil {
			return heap.Undefined, err
		}
		from += step
		to += step
	}
	return heap.ObjectValue(o), nil
}

func arrayIterMethod(kind int) realm.NativeFunc {
	return func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(this)
		if err != nil {
			return heap.Undefined, err
		}
		return arrayIterator(r, heap.ObjectValue(o), kind), nil
	}
}

// eachIndex calls fn for every present index of the array-like this.
func eachIndex(r *realm.Realm, this heap.Value, fn func(o *heap.Object, i int, v heap.Value) (bool, error)) (*heap.Object, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if !hasIndex(r, o, i) {
			continue
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return nil, err
		}
		more, err := fn(o, i, v)
		if err != nil || !more {
			return o, err
		}
	}
	return o, nil
}

// callback validates the callback argument of iteration methods.
func callback(r *realm.Realm, args []heap.Value) (heap.Value, heap.Value, error) {
	fn := arg(args, 0)
	if !fn.IsCallable() {
		return heap.Undefined, heap.Undefined, r.NewTypeError("%s is not a function", fn.Inspect())
	}
	return fn, arg(args, 1), nil
}

func arrayPredicate(decide func(hit bool) (bool, heap.Value), initial heap.Value) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, thisArg, err := callback(r, args)
		if err != nil {
			return heap.Undefined, err
		}
		result := initial
		_, err = eachIndex(r, this, func(o *heap.Object, i int, v heap.Value) (bool, error) {
			res, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
			if err != nil {
				return false, err
			}
			stop, out := decide(heap.ToBoolean(res))
			if stop {
				result = out
				return false, nil
			}
			return true, nil
		})
		return result, err
	}
}

func arrayFill(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	start, err := relativeIndex(r, arg(args, 1), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	end, err := relativeIndex(r, arg(args, 2), n, n)
	if err != nil {
		return heap.Undefined, err
	}
	for i := start; i < end; i++ {
		if err := setIndex(r, o, i, arg(args, 0)); err != nil {
			return heap.Undefined, err
		}
	}
	return heap.ObjectValue(o), nil
}

func arrayFilter(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	fn, thisArg, err := callback(r, args)
	if err != nil {
		return heap.Undefined, err
	}
	var out []heap.Value
	_, err = eachIndex(r, this, func(o *heap.Object, i int, v heap.Value) (bool, error) {
		res, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
		if err != nil {
			return false, err
		}
		if heap.ToBoolean(res) {
			out = append(out, v)
		}
		return true, nil
	})
	if err != nil {
		return heap.Undefined, err
	}
	return newArray(r, out), nil
}

// arrayFind implements find, findIndex and their Last variants. Unlike the
// other iteration methods they visit holes.
func arrayFind(wantIndex, fromEnd bool) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, thisArg, err := callback(r, args)
		if err != nil {
			return heap.Undefined, err
		}
		o, n, err := arrayThis(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		for k := 0; k < n; k++ {
			i := k
			if fromEnd {
				i = n - 1 - k
			}
			v, err := getIndex(r, o, i)
			if err != nil {
				return heap.Undefined, err
			}
			res, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
			if err != nil {
				return heap.Undefined, err
			}
			if heap.ToBoolean(res) {
				if wantIndex {
					return heap.IntValue(i), nil
				}
				return v, nil
			}
		}
		if wantIndex {
			return heap.IntValue(-1), nil
		}
		return heap.Undefined, nil
	}
}

func flatten(r *realm.Realm, out *heap.Object, src *heap.Object, depth float64) error {
	n, err := lengthOf(r, src)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if !hasIndex(r, src, i) {
			continue
		}
		v, err := getIndex(r, src, i)
		if err != nil {
			return err
		}
		if inner := v.AsObject(); inner != nil && inner.IsArray() && depth > 0 {
			if err := flatten(r, out, inner, depth-1); err != nil {
				return err
			}
			continue
		}
		out.Append(v)
	}
	return nil
}

func arrayFlat(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, err := r.ToObject(this)
	if err != nil {
		return heap.Undefined, err
	}
	depth := 1.0
	if !arg(args, 0).IsUndefined() {
		if depth, err = toInteger(r, arg(args, 0)); err != nil {
			return heap.Undefined, err
		}
	}
	out := r.NewArray(nil)
	if err := flatten(r, out, o, depth); err != nil {
		return heap.Undefined, err
	}
	return heap.ObjectValue(out), nil
}

func arrayFlatMap(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	fn, thisArg, err := callback(r, args)
	if err != nil {
		return heap.Undefined, err
	}
	out := r.NewArray(nil)
	_, err = eachIndex(r, this, func(o *heap.Object, i int, v heap.Value) (bool, error) {
		res, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
		if err != nil {
			return false, err
		}
		if inner := res.AsObject(); inner != nil && inner.IsArray() {
			return true, flatten(r, out, inner, 0)
		}
		out.Append(res)
		return true, nil
	})
	if err != nil {
		return heap.Undefined, err
	}
	return heap.ObjectValue(out), nil
}

func arrayForEach(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	fn, thisArg, err := callback(r, args)
	if err != nil {
		return heap.Undefined, err
	}
	_, err = eachIndex(r, this, func(o *heap.Object, i int, v heap.Value) (bool, error) {
		_, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
		return true, err
	})
	return heap.Undefined, err
}

func arrayIncludes(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	from, err := relativeIndex(r, arg(args, 1), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	for i := from; i < n; i++ {
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		if heap.SameValueZero(v, arg(args, 0)) {
			return heap.True, nil
		}
	}
	return heap.False, nil
}

func arrayIndexOf(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	from, err := relativeIndex(r, arg(args, 1), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	for i := from; i < n; i++ {
		if !hasIndex(r, o, i) {
			continue
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		if heap.StrictEquals(v, arg(args, 0)) {
			return heap.IntValue(i), nil
		}
	}
	return heap.IntValue(-1), nil
}

func arrayLastIndexOf(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	from := n - 1
	if len(args) > 1 {
		f, err := toInteger(r, args[1])
		if err != nil {
			return heap.Undefined, err
		}
		if f < 0 {
			f += float64(n)
		}
		from = int(math.Min(f, float64(n-1)))
	}
	for i := from; i >= 0; i-- {
		if !hasIndex(r, o, i) {
			continue
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		if heap.StrictEquals(v, arg(args, 0)) {
			return heap.IntValue(i), nil
		}
	}
	return heap.IntValue(-1), nil
}

// joining tracks arrays being joined per realm so cyclic arrays print as
// empty strings.
var joining = struct {
	sync.Mutex
	active map[*heap.Object]bool
}{active: map[*heap.Object]bool{}}

func arrayJoin(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	sep := ","
	if !arg(args, 0).IsUndefined() {
		if sep, err = toStr(r, arg(args, 0)); err != nil {
			return heap.Undefined, err
		}
	}
	joining.Lock()
	if joining.active[o] {
		joining.Unlock()
		return heap.EmptyString, nil
	}
	joining.active[o] = true
	joining.Unlock()
	defer func() {
		joining.Lock()
		delete(joining.active, o)
		joining.Unlock()
	}()
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(sep)
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		if v.IsNullish() {
			continue
		}
		s, err := toStr(r, v)
		if err != nil {
			return heap.Undefined, err
		}
		b.WriteString(s)
	}
	return str(b.String()), nil
}

func arrayToString(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, err := r.ToObject(this)
	if err != nil {
		return heap.Undefined, err
	}
	join, err := r.Get(heap.ObjectValue(o), "join")
	if err != nil {
		return heap.Undefined, err
	}
	if join.IsCallable() {
		return r.Call(join, heap.ObjectValue(o))
	}
	return objectToString(r, heap.ObjectValue(o))
}

func arrayMap(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	fn, thisArg, err := callback(r, args)
	if err != nil {
		return heap.Undefined, err
	}
	_, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	out := r.NewArray(nil)
	out.SetLength(uint32(n))
	_, err = eachIndex(r, this, func(o *heap.Object, i int, v heap.Value) (bool, error) {
		res, err := r.Call(fn, thisArg, v, heap.IntValue(i), heap.ObjectValue(o))
		if err != nil {
			return false, err
		}
		out.DefineOwnProperty(index(i), heap.DataDesc(res, heap.DefaultFlags))
		return true, nil
	})
	if err != nil {
		return heap.Undefined, err
	}
	return heap.ObjectValue(out), nil
}

func arrayPop(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if n == 0 {
		return heap.Undefined, setLength(r, o, 0)
	}
	v, err := getIndex(r, o, n-1)
	if err != nil {
		return heap.Undefined, err
	}
	r.Heap.Retain(v)
	defer r.Heap.Release(v)
	if err := deleteIndex(r, o, n-1); err != nil {
		return heap.Undefined, err
	}
	return v, setLength(r, o, n-1)
}

func arrayPush(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if o.IsArray() && !o.IsFrozen() {
		for _, v := range args {
			if !o.Append(v) {
				return heap.Undefined, r.NewTypeError("Cannot add property %d, object is not extensible", o.Len())
			}
		}
		return heap.IntValue(int(o.Len())), nil
	}
	for _, v := range args {
		if err := setIndex(r, o, n, v); err != nil {
			return heap.Undefined, err
		}
		n++
	}
	return heap.IntValue(n), setLength(r, o, n)
}

func arrayReduce(fromEnd bool) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		fn := arg(args, 0)
		if !fn.IsCallable() {
			return heap.Undefined, r.NewTypeError("%s is not a function", fn.Inspect())
		}
		o, n, err := arrayThis(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		at := func(k int) int {
			if fromEnd {
				return n - 1 - k
			}
			return k
		}
		k := 0
		var acc heap.Value
		if len(args) > 1 {
			acc = args[1]
		} else {
			for ; k < n && !hasIndex(r, o, at(k)); k++ {
			}
			if k == n {
				return heap.Undefined, r.NewTypeError("Reduce of empty array with no initial value")
			}
			if acc, err = getIndex(r, o, at(k)); err != nil {
				return heap.Undefined, err
			}
			k++
		}
		for ; k < n; k++ {
			i := at(k)
			if !hasIndex(r, o, i) {
				continue
			}
			v, err := getIndex(r, o, i)
			if err != nil {
				return heap.Undefined, err
			}
			if acc, err = r.Call(fn, heap.Undefined, acc, v, heap.IntValue(i), heap.ObjectValue(o)); err != nil {
				return heap.Undefined, err
			}
		}
		return acc, nil
	}
}

func arrayReverse(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	for lo, hi := 0, n-1; lo < hi; lo, hi = lo+1, hi-1 {
		lok, hik := hasIndex(r, o, lo), hasIndex(r, o, hi)
		lv, err := getIndex(r, o, lo)
		if err != nil {
			return heap.Undefined, err
		}
		hv, err := getIndex(r, o, hi)
		if err != nil {
			return heap.Undefined, err
		}
		r.Heap.Retain(lv)
		if hik {
			err = setIndex(r, o, lo, hv)
		} else {
			err = deleteIndex(r, o, lo)
		}
		if err == nil {
			if lok {
				err = setIndex(r, o, hi, lv)
			} else {
				err = deleteIndex(r, o, hi)
			}
		}
		r.Heap.Release(lv)
		if err != nil {
			return heap.Undefined, err
		}
	}
	return heap.ObjectValue(o), nil
}

// shiftElements moves count elements starting at from to to, honoring
// holes.
func shiftElements(r *realm.Realm, o *heap.Object, from, to, count int) error {
	move := func(k int) error {
		if hasIndex(r, o, from+k) {
			v, err := getIndex(r, o, from+k)
			if err != nil {
				return err
			}
			return setIndex(r, o, to+k, v)
		}
		return deleteIndex(r, o, to+k)
	}
	if to < from {
		for k := 0; k < count; k++ {
			if err := move(k); err != nil {
				return err
			}
		}
		return nil
	}
	for k := count - 1; k >= 0; k-- {
		if err := move(k); err != nil {
			return err
		}
	}
	return nil
}

func arrayShift(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if n == 0 {
		return heap.Undefined, setLength(r, o, 0)
	}
	first, err := getIndex(r, o, 0)
	if err != nil {
		return heap.Undefined, err
	}
	r.Heap.Retain(first)
	defer r.Heap.Release(first)
	if err := shiftElements(r, o, 1, 0, n-1); err != nil {
		return heap.Undefined, err
	}
	if err := deleteIndex(r, o, n-1); err != nil {
		return heap.Undefined, err
	}
	return first, setLength(r, o, n-1)
}

func arrayUnshift(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if len(args) > 0 {
		if err := shiftElements(r, o, 0, len(args), n); err != nil {
			return heap.Undefined, err
		}
		for i, v := range args {
			if err := setIndex(r, o, i, v); err != nil {
				return heap.Undefined, err
			}
		}
	}
	return heap.IntValue(n + len(args)), setLength(r, o, n+len(args))
}

func arraySlice(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	start, err := relativeIndex(r, arg(args, 0), n, 0)
	if err != nil {
		return heap.Undefined, err
	}
	end, err := relativeIndex(r, arg(args, 1), n, n)
	if err != nil {
		return heap.Undefined, err
	}
	out := r.NewArray(nil)
	for i := start; i < end; i++ {
		if !hasIndex(r, o, i) {
			out.AppendHole()
			continue
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		out.Append(v)
	}
	return heap.ObjectValue(out), nil
}

// sortValues sorts vals with the guest comparator cmp, or by string order
// when cmp is undefined. Undefined values sort last.
func sortValues(r *realm.Realm, vals []heap.Value, cmp heap.Value) error {
	var undef int
	defined := vals[:0:0]
	for _, v := range vals {
		if v.IsUndefined() {
			undef++
			continue
		}
		defined = append(defined, v)
	}
	var firstErr error
	var keys []string
	if cmp.IsUndefined() {
		keys = make([]string, len(defined))
		for i, v := range defined {
			s, err := toStr(r, v)
			if err != nil {
				return err
			}
			keys[i] = s
		}
	}
	idx := make([]int, len(defined))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if firstErr != nil {
			return false
		}
		if keys != nil {
			return compareUTF16(keys[idx[a]], keys[idx[b]]) < 0
		}
		res, err := r.Call(cmp, heap.Undefined, defined[idx[a]], defined[idx[b]])
		if err != nil {
			firstErr = err
			return false
		}
		f, err := toNum(r, res)
		if err != nil {
			firstErr = err
			return false
		}
		return f < 0
	})
	if firstErr != nil {
		return firstErr
	}
	sorted := make([]heap.Value, 0, len(vals))
	for _, i := range idx {
		sorted = append(sorted, defined[i])
	}
	for ; undef > 0; undef-- {
		sorted = append(sorted, heap.Undefined)
	}
	copy(vals, sorted)
	return nil
}

// compareUTF16 orders strings by UTF-16 code units.
func compareUTF16(a, b string) int {
	ua, ub := heap.ToUTF16(a), heap.ToUTF16(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return int(ua[i]) - int(ub[i])
		}
	}
	return len(ua) - len(ub)
}

func arraySort(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	cmp := arg(args, 0)
	if !cmp.IsUndefined() && !cmp.IsCallable() {
		return heap.Undefined, r.NewTypeError("The comparison function must be either a function or undefined")
	}
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	var vals []heap.Value
	for i := 0; i < n; i++ {
		if !hasIndex(r, o, i) {
			continue
		}
		v, err := getIndex(r, o, i)
		if err != nil {
			return heap.Undefined, err
		}
		vals = append(vals, v)
	}
	for _, v := range vals {
		r.Heap.Retain(v)
	}
	defer func() {
		for _, v := range vals {
			r.Heap.Release(v)
		}
	}()
	if err := sortValues(r, vals, cmp); err != nil {
		return heap.Undefined, err
	}
	for i, v := range vals {
		if err := setIndex(r, o, i, v); err != nil {
			return heap.Undefined, err
		}
	}
	for i := len(vals); i < n; i++ {
		if err := deleteIndex(r, o, i); err != nil {
			return heap.Undefined, err
		}
	}
	return heap.ObjectValue(o), nil
}

// spliceArgs resolves the start and delete count of splice and toSpliced.
func spliceArgs(r *realm.Realm, args []heap.Value, n int) (start, del int, err error) {
	if start, err = relativeIndex(r, arg(args, 0), n, 0); err != nil {
		return
	}
	switch len(args) {
	case 0:
		return start, 0, nil
	case 1:
		return start, n - start, nil
	}
	d, err := toInteger(r, args[1])
	if err != nil {
		return 0, 0, err
	}
	return start, int(math.Max(0, math.Min(d, float64(n-start)))), nil
}

func arraySplice(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	start, del, err := spliceArgs(r, args, n)
	if err != nil {
		return heap.Undefined, err
	}
	var items []heap.Value
	if len(args) > 2 {
		items = args[2:]
	}
	removed := r.NewArray(nil)
	for i := 0; i < del; i++ {
		if !hasIndex(r, o, start+i) {
			removed.AppendHole()
			continue
		}
		v, err := getIndex(r, o, start+i)
		if err != nil {
			return heap.Undefined, err
		}
		removed.Append(v)
	}
	tail := n - start - del
	if len(items) != del {
		if err := shiftElements(r, o, start+del, start+len(items), tail); err != nil {
			return heap.Undefined, err
		}
		for i := n - 1; i >= n-del+len(items); i-- {
			if err := deleteIndex(r, o, i); err != nil {
				return heap.Undefined, err
			}
		}
	}
	for i, v := range items {
		if err := setIndex(r, o, start+i, v); err != nil {
			return heap.Undefined, err
		}
	}
	return heap.ObjectValue(removed), setLength(r, o, n-del+len(items))
}

// arrayCopy reads every index of this into a slice, holes as undefined.
func arrayCopy(r *realm.Realm, this heap.Value) ([]heap.Value, error) {
	o, n, err := arrayThis(r, this)
	if err != nil {
		return nil, err
	}
	vals := make([]heap.Value, n)
	for i := range vals {
		if vals[i], err = getIndex(r, o, i); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func arrayToReversed(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	vals, err := arrayCopy(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		vals[i], vals[j] = vals[j], vals[i]
	}
	return newArray(r, vals), nil
}

func arrayToSorted(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	cmp := arg(args, 0)
	if !cmp.IsUndefined() && !cmp.IsCallable() {
		return heap.Undefined, r.NewTypeError("The comparison function must be either a function or undefined")
	}
	vals, err := arrayCopy(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if err := sortValues(r, vals, cmp); err != nil {
		return heap.Undefined, err
	}
	return newArray(r, vals), nil
}

func arrayToSpliced(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	vals, err := arrayCopy(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	start, del, err := spliceArgs(r, args, len(vals))
	if err != nil {
		return heap.Undefined, err
	}
	out := append([]heap.Value{}, vals[:start]...)
	if len(args) > 2 {
		out = append(out, args[2:]...)
	}
	out = append(out, vals[start+del:]...)
	return newArray(r, out), nil
}

func arrayWith(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
	vals, err := arrayCopy(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	rel, err := toInteger(r, arg(args, 0))
	if err != nil {
		return heap.Undefined, err
	}
	if rel < 0 {
		rel += float64(len(vals))
	}
	if rel < 0 || rel >= float64(len(vals)) {
		return heap.Undefined, r.NewRangeError("Invalid index : %s", heap.NumberToString(rel))
	}
	vals[int(rel)] = arg(args, 1)
	return newArray(r, vals), nil
}
