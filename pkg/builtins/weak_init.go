package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type weakEntry struct {
	key   *heap.Object // nil for symbol keys
	value heap.Value
}

// weakStore is the internal slot of WeakMap and WeakSet objects. Keys are
// held without a count and are not reported as edges; values are retained
// and reported. Entries whose key has been freed are dropped as the table
// grows.
type weakStore struct {
	h       *heap.Heap
	entries map[any]weakEntry
	pruneAt int
}

func newWeakStore(h *heap.Heap) *weakStore {
	return &weakStore{h: h, entries: map[any]weakEntry{}, pruneAt: 8}
}

func (s *weakStore) EachRef(visit func(heap.Node)) {
	for _, e := range s.entries {
		if n := e.value.Node(); n != nil {
			visit(n)
		}
	}
}

// weakKey returns the identity of v if it can be held weakly: an object or
// a symbol not created through Symbol.for.
func weakKey(v heap.Value) (any, *heap.Object, bool) {
	switch {
	case v.IsObject():
		return v.AsObject(), v.AsObject(), true
	case v.IsSymbol() && !v.AsSymbol().Registered:
		return v.AsSymbol(), nil, true
	}
	return nil, nil, false
}

func (s *weakStore) get(k heap.Value) (heap.Value, bool) {
	id, _, ok := weakKey(k)
	if !ok {
		return heap.Undefined, false
	}
	e, ok := s.entries[id]
	return e.value, ok
}

func (s *weakStore) set(k, v heap.Value) bool {
	id, obj, ok := weakKey(k)
	if !ok {
		return false
	}
	s.h.Retain(v)
	if old, ok := s.entries[id]; ok {
		s.h.Release(old.value)
	}
	s.entries[id] = weakEntry{key: obj, value: v}
	if len(s.entries) >= s.pruneAt {
		s.prune()
	}
	return true
}

func (s *weakStore) delete(k heap.Value) bool {
	id, _, ok := weakKey(k)
	if !ok {
		return false
	}
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	s.h.Release(e.value)
	return true
}

func (s *weakStore) prune() {
	for id, e := range s.entries {
		if e.key != nil && e.key.Freed() {
			delete(s.entries, id)
			s.h.Release(e.value)
		}
	}
	s.pruneAt = max(8, 2*len(s.entries))
}

func weakStoreOf(r *realm.Realm, this heap.Value, class, method string) (*weakStore, error) {
	if o := this.AsObject(); o != nil && o.Class() == class {
		if s, ok := o.Internal.(*weakStore); ok {
			return s, nil
		}
	}
	return nil, r.NewTypeError("Method %s.prototype.%s called on incompatible receiver %s", class, method, this.Inspect())
}

// newWeakCollection builds the constructor shared by WeakMap and WeakSet.
// add names the method fed with each item of the optional iterable.
func newWeakCollection(r *realm.Realm, class, add, protoName string, proto *heap.Object, feed func(r *realm.Realm, adder, o, item heap.Value) error) *heap.Object {
	return r.NewNativeConstructor(class, 0, nil,
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			p, err := protoFromCtor(r, newTarget, protoName)
			if err != nil {
				return heap.Undefined, err
			}
			o := heap.ObjectValue(r.Heap.NewObjectOf(class, p, newWeakStore(r.Heap)))
			it := arg(args, 0)
			if it.IsNullish() {
				return o, nil
			}
			adder, err := r.Get(o, add)
			if err != nil {
				return heap.Undefined, err
			}
			if !adder.IsCallable() {
				return heap.Undefined, r.NewTypeError("'%s' returned for property '%s' of object '#<%s>' is not callable", adder.Inspect(), add, class)
			}
			err = iterate(r, it, func(item heap.Value) (bool, error) {
				err := feed(r, adder, o, item)
				return err == nil, err
			})
			if err != nil {
				return heap.Undefined, err
			}
			return o, nil
		}, proto)
}

type WeakMapInitializer struct{}

func (w *WeakMapInitializer) Name() string { return "WeakMap" }

func (w *WeakMapInitializer) Priority() int { return PriorityMap }

func (w *WeakMapInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.WeakMapPrototype, proto); err != nil {
		return err
	}
	ctor := newWeakCollection(r, "WeakMap", "set", realm.WeakMapPrototype, proto,
		func(r *realm.Realm, adder, o, item heap.Value) error {
			if !item.IsObject() {
				return r.NewTypeError("Iterator value %s is not an entry object", item.Inspect())
			}
			k, err := getIndex(r, item.AsObject(), 0)
			if err != nil {
				return err
			}
			v, err := getIndex(r, item.AsObject(), 1)
			if err != nil {
				return err
			}
			_, err = r.Call(adder, o, k, v)
			return err
		})
	r.Method(proto, "get", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakMap", "get")
		if err != nil {
			return heap.Undefined, err
		}
		v, _ := s.get(arg(args, 0))
		return v, nil
	})
	r.Method(proto, "set", 2, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakMap", "set")
		if err != nil {
			return heap.Undefined, err
		}
		if !s.set(arg(args, 0), arg(args, 1)) {
			return heap.Undefined, r.NewTypeError("Invalid value used as weak map key")
		}
		return this, nil
	})
	r.Method(proto, "has", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakMap", "has")
		if err != nil {
			return heap.Undefined, err
		}
		_, ok := s.get(arg(args, 0))
		return heap.BooleanValue(ok), nil
	})
	r.Method(proto, "delete", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakMap", "delete")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(s.delete(arg(args, 0))), nil
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("WeakMap"), heap.Configurable))
	return ctx.DefineGlobal("WeakMap", heap.ObjectValue(ctor))
}

type WeakSetInitializer struct{}

func (w *WeakSetInitializer) Name() string { return "WeakSet" }

func (w *WeakSetInitializer) Priority() int { return PriorityMap }

func (w *WeakSetInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.WeakSetPrototype, proto); err != nil {
		return err
	}
	ctor := newWeakCollection(r, "WeakSet", "add", realm.WeakSetPrototype, proto,
		func(r *realm.Realm, adder, o, item heap.Value) error {
			_, err := r.Call(adder, o, item)
			return err
		})
	r.Method(proto, "add", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakSet", "add")
		if err != nil {
			return heap.Undefined, err
		}
		if !s.set(arg(args, 0), heap.Undefined) {
			return heap.Undefined, r.NewTypeError("Invalid value used in weak set")
		}
		return this, nil
	})
	r.Method(proto, "has", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakSet", "has")
		if err != nil {
			return heap.Undefined, err
		}
		_, ok := s.get(arg(args, 0))
		return heap.BooleanValue(ok), nil
	})
	r.Method(proto, "delete", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := weakStoreOf(r, this, "WeakSet", "delete")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(s.delete(arg(args, 0))), nil
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("WeakSet"), heap.Configurable))
	return ctx.DefineGlobal("WeakSet", heap.ObjectValue(ctor))
}
