package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type IteratorInitializer struct{}

func (i *IteratorInitializer) Name() string { return "Iterator" }

func (i *IteratorInitializer) Priority() int { return PriorityIterator }

// stepFunc produces the next value of a builtin iterator over source.
type stepFunc func(r *realm.Realm, source heap.Value) (v heap.Value, done bool, err error)

// builtinIterator is the internal slot of array, string, map and set
// iterators.
type builtinIterator struct {
	source heap.Value
	step   stepFunc
	done   bool
}

func (it *builtinIterator) EachRef(visit func(heap.Node)) {
	if n := it.source.Node(); n != nil {
		visit(n)
	}
}

// newIterator allocates a builtin iterator inheriting from the named
// intrinsic prototype.
func newIterator(r *realm.Realm, protoName string, source heap.Value, step stepFunc) heap.Value {
	r.Heap.Retain(source)
	it := &builtinIterator{source: source, step: step}
	return heap.ObjectValue(r.Heap.NewObjectOf(protoName, r.Intrinsic(protoName), it))
}

// iteratorNext is the shared next method of builtin iterator prototypes.
func iteratorNext(class string) realm.NativeFunc {
	return func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o := this.AsObject()
		var it *builtinIterator
		if o != nil && o.Class() == class {
			it, _ = o.Internal.(*builtinIterator)
		}
		if it == nil {
			return heap.Undefined, r.NewTypeError("next method called on incompatible receiver %s", this.Inspect())
		}
		if it.done {
			return r.IterResult(heap.Undefined, true), nil
		}
		v, done, err := it.step(r, it.source)
		if err != nil {
			return heap.Undefined, err
		}
		if done {
			it.done = true
			r.Heap.Release(it.source)
			it.source = heap.Undefined
			return r.IterResult(heap.Undefined, true), nil
		}
		return r.IterResult(v, false), nil
	}
}

// iteratorPrototype creates a prototype for builtin iterators tagged tag.
func iteratorPrototype(ctx *RuntimeContext, name, tag string) (*heap.Object, error) {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.IteratorPrototype))
	r.Method(proto, "next", 0, iteratorNext(name))
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str(tag), heap.Configurable))
	return proto, ctx.Intrinsic(name, proto)
}

func (i *IteratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	iterProto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	r.SymbolMethod(iterProto, heap.SymIterator, "[Symbol.iterator]", 0, func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})
	if err := ctx.Intrinsic(realm.IteratorPrototype, iterProto); err != nil {
		return err
	}
	r.Method(iterProto, "toArray", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		vals, err := collect(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return newArray(r, vals), nil
	})
	r.Method(iterProto, "forEach", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, err := requireCallable(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		n := 0
		err = iterate(r, this, func(v heap.Value) (bool, error) {
			_, err := r.Call(heap.ObjectValue(fn), heap.Undefined, v, heap.IntValue(n))
			n++
			return true, err
		})
		return heap.Undefined, err
	})

	asyncIterProto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	r.SymbolMethod(asyncIterProto, heap.SymAsyncIterator, "[Symbol.asyncIterator]", 0, func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})
	if err := ctx.Intrinsic("AsyncIteratorPrototype", asyncIterProto); err != nil {
		return err
	}

	for _, p := range []struct{ name, tag string }{
		{realm.ArrayIteratorPrototype, "Array Iterator"},
		{"StringIteratorPrototype", "String Iterator"},
		{"MapIteratorPrototype", "Map Iterator"},
		{"SetIteratorPrototype", "Set Iterator"},
		{"RegExpStringIteratorPrototype", "RegExp String Iterator"},
	} {
		if _, err := iteratorPrototype(ctx, p.name, p.tag); err != nil {
			return err
		}
	}
	return nil
}

// Array iteration kinds.
const (
	iterKeys = iota
	iterValues
	iterEntries
)

// arrayIterator walks an array-like by index, re-reading its length on
// every step.
func arrayIterator(r *realm.Realm, source heap.Value, kind int) heap.Value {
	i := 0
	return newIterator(r, realm.ArrayIteratorPrototype, source, func(r *realm.Realm, src heap.Value) (heap.Value, bool, error) {
		o := src.AsObject()
		var n int
		if o == nil {
			n = heap.UTF16Len(src.AsString())
		} else {
			var err error
			if n, err = lengthOf(r, o); err != nil {
				return heap.Undefined, false, err
			}
		}
		if i >= n {
			return heap.Undefined, true, nil
		}
		k := i
		i++
		if kind == iterKeys {
			return heap.IntValue(k), false, nil
		}
		v, err := r.GetKey(src, index(k))
		if err != nil {
			return heap.Undefined, false, err
		}
		if kind == iterValues {
			return v, false, nil
		}
		return newArray(r, []heap.Value{heap.IntValue(k), v}), false, nil
	})
}
