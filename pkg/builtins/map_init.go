package builtins

import (
	"math"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// hashKey identifies a Map/Set key under SameValueZero.
type hashKey struct {
	kind heap.Kind
	bits uint64
	str  string
	ref  any
}

func keyOf(v heap.Value) hashKey {
	k := hashKey{kind: v.Kind()}
	switch v.Kind() {
	case heap.KindNumber:
		f := v.AsNumber()
		switch {
		case math.IsNaN(f):
			k.bits = 0x7ff8000000000001
		case f == 0:
			k.bits = 0
		default:
			k.bits = math.Float64bits(f)
		}
	case heap.KindBoolean:
		if v.AsBoolean() {
			k.bits = 1
		}
	case heap.KindString:
		k.str = v.AsString()
	case heap.KindBigInt:
		k.str = v.AsBigInt().String()
	case heap.KindSymbol:
		k.ref = v.AsSymbol()
	case heap.KindObject:
		k.ref = v.AsObject()
	}
	return k
}

type entry struct {
	key, value heap.Value
	deleted    bool
}

// orderedStore is the internal slot of Map and Set objects. Entries keep
// insertion order; deletions leave tombstones so live iterators keep their
// position. clear bumps epoch, which restarts iterators on the new list.
type orderedStore struct {
	h       *heap.Heap
	entries []entry
	index   map[hashKey]int
	size    int
	epoch   int
}

func newOrderedStore(h *heap.Heap) *orderedStore {
	return &orderedStore{h: h, index: map[hashKey]int{}}
}

func (s *orderedStore) EachRef(visit func(heap.Node)) {
	for _, e := range s.entries {
		if e.deleted {
			continue
		}
		if n := e.key.Node(); n != nil {
			visit(n)
		}
		if n := e.value.Node(); n != nil {
			visit(n)
		}
	}
}

func (s *orderedStore) get(k heap.Value) (heap.Value, bool) {
	i, ok := s.index[keyOf(k)]
	if !ok {
		return heap.Undefined, false
	}
	return s.entries[i].value, true
}

func (s *orderedStore) set(k, v heap.Value) {
	if k.IsNumber() && k.AsNumber() == 0 {
		k = heap.IntValue(0)
	}
	hk := keyOf(k)
	if i, ok := s.index[hk]; ok {
		s.h.Retain(v)
		s.h.Release(s.entries[i].value)
		s.entries[i].value = v
		return
	}
	s.h.Retain(k)
	s.h.Retain(v)
	s.index[hk] = len(s.entries)
	s.entries = append(s.entries, entry{key: k, value: v})
	s.size++
}

func (s *orderedStore) delete(k heap.Value) bool {
	hk := keyOf(k)
	i, ok := s.index[hk]
	if !ok {
		return false
	}
	delete(s.index, hk)
	e := &s.entries[i]
	s.h.Release(e.key)
	s.h.Release(e.value)
	*e = entry{key: heap.Undefined, value: heap.Undefined, deleted: true}
	s.size--
	return true
}

func (s *orderedStore) clear() {
	for _, e := range s.entries {
		if !e.deleted {
			s.h.Release(e.key)
			s.h.Release(e.value)
		}
	}
	s.entries = nil
	s.index = map[hashKey]int{}
	s.size = 0
	s.epoch++
}

// cursor walks s, tolerating mutation between steps.
type cursor struct {
	pos, epoch int
}

func (c *cursor) next(s *orderedStore) (entry, bool) {
	if c.epoch != s.epoch {
		c.pos, c.epoch = 0, s.epoch
	}
	for c.pos < len(s.entries) {
		e := s.entries[c.pos]
		c.pos++
		if !e.deleted {
			return e, true
		}
	}
	return entry{}, false
}

func storeOf(r *realm.Realm, this heap.Value, class, method string) (*orderedStore, error) {
	if o := this.AsObject(); o != nil && o.Class() == class {
		if s, ok := o.Internal.(*orderedStore); ok {
			return s, nil
		}
	}
	return nil, r.NewTypeError("Method %s.prototype.%s called on incompatible receiver %s", class, method, this.Inspect())
}

// storeIterator returns an iterator over the entries of the Map or Set
// object src projected by kind.
func storeIterator(r *realm.Realm, protoName string, src heap.Value, kind int) heap.Value {
	c := &cursor{epoch: -1}
	return newIterator(r, protoName, src, func(r *realm.Realm, src heap.Value) (heap.Value, bool, error) {
		s := src.AsObject().Internal.(*orderedStore)
		if c.epoch == -1 {
			c.epoch = s.epoch
		}
		e, ok := c.next(s)
		if !ok {
			return heap.Undefined, true, nil
		}
		switch kind {
		case iterKeys:
			return e.key, false, nil
		case iterValues:
			return e.value, false, nil
		}
		return newArray(r, []heap.Value{e.key, e.value}), false, nil
	})
}

// forEachEntry calls fn(value, key, this) for every live entry, including
// those added during the walk.
func forEachEntry(r *realm.Realm, s *orderedStore, this heap.Value, args []heap.Value) error {
	fn, err := requireCallable(r, arg(args, 0))
	if err != nil {
		return err
	}
	c := &cursor{epoch: s.epoch}
	for {
		e, ok := c.next(s)
		if !ok {
			return nil
		}
		if _, err := r.Call(heap.ObjectValue(fn), arg(args, 1), e.value, e.key, this); err != nil {
			return err
		}
	}
}

func sizeGetter(class string) realm.NativeFunc {
	return func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, class, "size")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.IntValue(s.size), nil
	}
}

type MapInitializer struct{}

func (m *MapInitializer) Name() string { return "Map" }

func (m *MapInitializer) Priority() int { return PriorityMap }

func (m *MapInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.MapPrototype, proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("Map", 0, nil,
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			p, err := protoFromCtor(r, newTarget, realm.MapPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			s := newOrderedStore(r.Heap)
			o := r.Heap.NewObjectOf("Map", p, s)
			if it := arg(args, 0); !it.IsNullish() {
				adder, err := r.Get(heap.ObjectValue(o), "set")
				if err != nil {
					return heap.Undefined, err
				}
				if !adder.IsCallable() {
					return heap.Undefined, r.NewTypeError("'%s' returned for property 'set' of object '#<Map>' is not callable", adder.Inspect())
				}
				err = iterate(r, it, func(item heap.Value) (bool, error) {
					if !item.IsObject() {
						return false, r.NewTypeError("Iterator value %s is not an entry object", item.Inspect())
					}
					k, err := getIndex(r, item.AsObject(), 0)
					if err != nil {
						return false, err
					}
					v, err := getIndex(r, item.AsObject(), 1)
					if err != nil {
						return false, err
					}
					_, err = r.Call(adder, heap.ObjectValue(o), k, v)
					return err == nil, err
				})
				if err != nil {
					return heap.Undefined, err
				}
			}
			return heap.ObjectValue(o), nil
		}, proto)
	r.Getter(ctor, heap.SymbolKey(heap.SymSpecies), func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})
	r.Method(ctor, "groupBy", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, err := requireCallable(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		s := newOrderedStore(r.Heap)
		out := r.Heap.NewObjectOf("Map", r.Intrinsic(realm.MapPrototype), s)
		n := 0
		err = iterate(r, arg(args, 0), func(v heap.Value) (bool, error) {
			k, err := r.Call(heap.ObjectValue(fn), heap.Undefined, v, heap.IntValue(n))
			if err != nil {
				return false, err
			}
			n++
			group, ok := s.get(k)
			if !ok {
				group = newArray(r, nil)
				s.set(k, group)
			}
			group.AsObject().Append(v)
			return true, nil
		})
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(out), nil
	})

	r.Method(proto, "get", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "get")
		if err != nil {
			return heap.Undefined, err
		}
		v, _ := s.get(arg(args, 0))
		return v, nil
	})
	r.Method(proto, "set", 2, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "set")
		if err != nil {
			return heap.Undefined, err
		}
		s.set(arg(args, 0), arg(args, 1))
		return this, nil
	})
	r.Method(proto, "has", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "has")
		if err != nil {
			return heap.Undefined, err
		}
		_, ok := s.get(arg(args, 0))
		return heap.BooleanValue(ok), nil
	})
	r.Method(proto, "delete", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "delete")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(s.delete(arg(args, 0))), nil
	})
	r.Method(proto, "clear", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "clear")
		if err != nil {
			return heap.Undefined, err
		}
		s.clear()
		return heap.Undefined, nil
	})
	r.Method(proto, "forEach", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Map", "forEach")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.Undefined, forEachEntry(r, s, this, args)
	})
	r.Getter(proto, heap.StringKey("size"), sizeGetter("Map"))
	for _, m := range []struct {
		name string
		kind int
	}{{"keys", iterKeys}, {"values", iterValues}, {"entries", iterEntries}} {
		kind, name := m.kind, m.name
		fn := r.Method(proto, name, 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
			if _, err := storeOf(r, this, "Map", name); err != nil {
				return heap.Undefined, err
			}
			return storeIterator(r, "MapIteratorPrototype", this, kind), nil
		})
		if kind == iterEntries {
			proto.DefineOwnProperty(heap.SymbolKey(heap.SymIterator), heap.DataDesc(heap.ObjectValue(fn), heap.HiddenFlags))
		}
	}
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Map"), heap.Configurable))
	return ctx.DefineGlobal("Map", heap.ObjectValue(ctor))
}

type SetInitializer struct{}

func (s *SetInitializer) Name() string { return "Set" }

func (s *SetInitializer) Priority() int { return PriorityMap }

// setLike reads the size/has/keys protocol of a Set method argument.
type setLike struct {
	obj  heap.Value
	size float64
	has  heap.Value
	keys heap.Value
}

func getSetRecord(r *realm.Realm, v heap.Value) (*setLike, error) {
	if !v.IsObject() {
		return nil, r.NewTypeError("%s is not an object", v.Inspect())
	}
	rawSize, err := r.Get(v, "size")
	if err != nil {
		return nil, err
	}
	size, err := toNum(r, rawSize)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(size) {
		return nil, r.NewTypeError("The 'size' property must be a number")
	}
	has, err := r.Get(v, "has")
	if err != nil {
		return nil, err
	}
	keys, err := r.Get(v, "keys")
	if err != nil {
		return nil, err
	}
	if !has.IsCallable() || !keys.IsCallable() {
		return nil, r.NewTypeError("Set-like object must have callable has and keys")
	}
	return &setLike{obj: v, size: heap.ToIntegerOrInfinity(size), has: has, keys: keys}, nil
}

func (sl *setLike) contains(r *realm.Realm, v heap.Value) (bool, error) {
	res, err := r.Call(sl.has, sl.obj, v)
	return heap.ToBoolean(res), err
}

// eachKey walks the keys iterator of a set-like.
func (sl *setLike) eachKey(r *realm.Realm, fn func(heap.Value) (bool, error)) error {
	it, err := r.Call(sl.keys, sl.obj)
	if err != nil {
		return err
	}
	if !it.IsObject() {
		return r.NewTypeError("keys() result is not an object")
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
		if !res.IsObject() {
			return r.NewTypeError("Iterator result %s is not an object", res.Inspect())
		}
		done, err := r.Get(res, "done")
		if err != nil || heap.ToBoolean(done) {
			return err
		}
		v, err := r.Get(res, "value")
		if err != nil {
			return err
		}
		more, err := fn(v)
		if err != nil || !more {
			if cerr := closeIterator(r, it); err == nil {
				return cerr
			}
			return err
		}
	}
}

func newSet(r *realm.Realm) (*heap.Object, *orderedStore) {
	s := newOrderedStore(r.Heap)
	return r.Heap.NewObjectOf("Set", r.Intrinsic(realm.SetPrototype), s), s
}

// setAlgebra implements union, intersection, difference and
// symmetricDifference over this and a set-like argument.
func setAlgebra(name string, op func(r *realm.Realm, self *orderedStore, other *setLike, out *orderedStore) error) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		self, err := storeOf(r, this, "Set", name)
		if err != nil {
			return heap.Undefined, err
		}
		other, err := getSetRecord(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		o, out := newSet(r)
		if err := op(r, self, other, out); err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(o), nil
	}
}

func copyStore(dst, src *orderedStore) {
	c := &cursor{epoch: src.epoch}
	for e, ok := c.next(src); ok; e, ok = c.next(src) {
		dst.set(e.key, e.value)
	}
}

// setPredicate implements isSubsetOf, isSupersetOf and isDisjointFrom.
func setPredicate(name string, test func(r *realm.Realm, self *orderedStore, other *setLike) (bool, error)) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		self, err := storeOf(r, this, "Set", name)
		if err != nil {
			return heap.Undefined, err
		}
		other, err := getSetRecord(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		ok, err := test(r, self, other)
		return heap.BooleanValue(ok), err
	}
}

func (s *SetInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.SetPrototype, proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("Set", 0, nil,
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			p, err := protoFromCtor(r, newTarget, realm.SetPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			o := r.Heap.NewObjectOf("Set", p, newOrderedStore(r.Heap))
			if it := arg(args, 0); !it.IsNullish() {
				adder, err := r.Get(heap.ObjectValue(o), "add")
				if err != nil {
					return heap.Undefined, err
				}
				if !adder.IsCallable() {
					return heap.Undefined, r.NewTypeError("'%s' returned for property 'add' of object '#<Set>' is not callable", adder.Inspect())
				}
				err = iterate(r, it, func(v heap.Value) (bool, error) {
					_, err := r.Call(adder, heap.ObjectValue(o), v)
					return err == nil, err
				})
				if err != nil {
					return heap.Undefined, err
				}
			}
			return heap.ObjectValue(o), nil
		}, proto)
	r.Getter(ctor, heap.SymbolKey(heap.SymSpecies), func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})

	r.Method(proto, "add", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Set", "add")
		if err != nil {
			return heap.Undefined, err
		}
		if _, ok := s.get(arg(args, 0)); !ok {
			s.set(arg(args, 0), arg(args, 0))
		}
		return this, nil
	})
	r.Method(proto, "has", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Set", "has")
		if err != nil {
			return heap.Undefined, err
		}
		_, ok := s.get(arg(args, 0))
		return heap.BooleanValue(ok), nil
	})
	r.Method(proto, "delete", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Set", "delete")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(s.delete(arg(args, 0))), nil
	})
	r.Method(proto, "clear", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Set", "clear")
		if err != nil {
			return heap.Undefined, err
		}
		s.clear()
		return heap.Undefined, nil
	})
	r.Method(proto, "forEach", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := storeOf(r, this, "Set", "forEach")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.Undefined, forEachEntry(r, s, this, args)
	})
	r.Getter(proto, heap.StringKey("size"), sizeGetter("Set"))

	r.Method(proto, "union", 1, setAlgebra("union", func(r *realm.Realm, self *orderedStore, other *setLike, out *orderedStore) error {
		copyStore(out, self)
		return other.eachKey(r, func(v heap.Value) (bool, error) {
			out.set(v, v)
			return true, nil
		})
	}))
	r.Method(proto, "intersection", 1, setAlgebra("intersection", func(r *realm.Realm, self *orderedStore, other *setLike, out *orderedStore) error {
		if float64(self.size) <= other.size {
			c := &cursor{epoch: self.epoch}
			for e, ok := c.next(self); ok; e, ok = c.next(self) {
				in, err := other.contains(r, e.key)
				if err != nil {
					return err
				}
				if in {
					out.set(e.key, e.key)
				}
			}
			return nil
		}
		return other.eachKey(r, func(v heap.Value) (bool, error) {
			if _, ok := self.get(v); ok {
				out.set(v, v)
			}
			return true, nil
		})
	}))
	r.Method(proto, "difference", 1, setAlgebra("difference", func(r *realm.Realm, self *orderedStore, other *setLike, out *orderedStore) error {
		copyStore(out, self)
		if float64(self.size) <= other.size {
			c := &cursor{epoch: self.epoch}
			for e, ok := c.next(self); ok; e, ok = c.next(self) {
				in, err := other.contains(r, e.key)
				if err != nil {
					return err
				}
				if in {
					out.delete(e.key)
				}
			}
			return nil
		}
		return other.eachKey(r, func(v heap.Value) (bool, error) {
			out.delete(v)
			return true, nil
		})
	}))
	r.Method(proto, "symmetricDifference", 1, setAlgebra("symmetricDifference", func(r *realm.Realm, self *orderedStore, other *setLike, out *orderedStore) error {
		copyStore(out, self)
		return other.eachKey(r, func(v heap.Value) (bool, error) {
			if _, ok := self.get(v); ok {
				out.delete(v)
			} else {
				out.set(v, v)
			}
			return true, nil
		})
	}))
	r.Method(proto, "isSubsetOf", 1, setPredicate("isSubsetOf", func(r *realm.Realm, self *orderedStore, other *setLike) (bool, error) {
		if float64(self.size) > other.size {
			return false, nil
		}
		c := &cursor{epoch: self.epoch}
		for e, ok := c.next(self); ok; e, ok = c.next(self) {
			in, err := other.contains(r, e.key)
			if err != nil || !in {
				return false, err
			}
		}
		return true, nil
	}))
	r.Method(proto, "isSupersetOf", 1, setPredicate("isSupersetOf", func(r *realm.Realm, self *orderedStore, other *setLike) (bool, error) {
		if float64(self.size) < other.size {
			return false, nil
		}
		result := true
		err := other.eachKey(r, func(v heap.Value) (bool, error) {
			_, ok := self.get(v)
			result = ok
			return ok, nil
		})
		return result, err
	}))
	r.Method(proto, "isDisjointFrom", 1, setPredicate("isDisjointFrom", func(r *realm.Realm, self *orderedStore, other *setLike) (bool, error) {
		result := true
		err := other.eachKey(r, func(v heap.Value) (bool, error) {
			_, ok := self.get(v)
			result = !ok
			return !ok, nil
		})
		return result, err
	}))

	values := r.Method(proto, "values", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if _, err := storeOf(r, this, "Set", "values"); err != nil {
			return heap.Undefined, err
		}
		return storeIterator(r, "SetIteratorPrototype", this, iterValues), nil
	})
	proto.DefineOwnProperty(heap.StringKey("keys"), heap.DataDesc(heap.ObjectValue(values), heap.HiddenFlags))
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymIterator), heap.DataDesc(heap.ObjectValue(values), heap.HiddenFlags))
	r.Method(proto, "entries", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if _, err := storeOf(r, this, "Set", "entries"); err != nil {
			return heap.Undefined, err
		}
		return storeIterator(r, "SetIteratorPrototype", this, iterEntries), nil
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Set"), heap.Configurable))
	return ctx.DefineGlobal("Set", heap.ObjectValue(ctor))
}

type WeakRefInitializer struct{}

func (w *WeakRefInitializer) Name() string { return "WeakRef" }

func (w *WeakRefInitializer) Priority() int { return PriorityMap }

// weakRef holds its target without a count and without reporting it as an
// edge, so the target can be freed while the WeakRef is alive.
type weakRef struct {
	target *heap.Object
	sym    *heap.Symbol
}

func (*weakRef) EachRef(func(heap.Node)) {}

func (w *weakRef) deref() heap.Value {
	switch {
	case w.target != nil:
		if w.target.Freed() {
			w.target = nil
			return heap.Undefined
		}
		return heap.ObjectValue(w.target)
	case w.sym != nil:
		return heap.SymbolValue(w.sym)
	}
	return heap.Undefined
}

func (w *WeakRefInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.WeakRefPrototype, proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("WeakRef", 1, nil,
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			t := arg(args, 0)
			wr := &weakRef{}
			switch {
			case t.IsObject():
				wr.target = t.AsObject()
			case t.IsSymbol() && !t.AsSymbol().Registered:
				wr.sym = t.AsSymbol()
			default:
				return heap.Undefined, r.NewTypeError("WeakRef: invalid target %s", t.Inspect())
			}
			p, err := protoFromCtor(r, newTarget, realm.WeakRefPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			return heap.ObjectValue(r.Heap.NewObjectOf("WeakRef", p, wr)), nil
		}, proto)
	r.Method(proto, "deref", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if o := this.AsObject(); o != nil {
			if wr, ok := o.Internal.(*weakRef); ok {
				return wr.deref(), nil
			}
		}
		return heap.Undefined, r.NewTypeError("WeakRef.prototype.deref called on incompatible receiver %s", this.Inspect())
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("WeakRef"), heap.Configurable))
	return ctx.DefineGlobal("WeakRef", heap.ObjectValue(ctor))
}
