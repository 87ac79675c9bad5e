package vm

import (
	"cinder/pkg/heap"
)

// Iteration modes of GetIterator.
const (
	iterSync          = 0
	iterSyncDetached  = 1
	iterAsync         = 2
	iterForIn         = 3
	iterAsyncDetached = 4
)

// iterRecord is the internal slot of the objects GetIterator leaves in a
// register: the iterator, its cached next method and for-in state.
type iterRecord struct {
	iterator heap.Value
	next     heap.Value
	done     bool
	async    bool

	forIn bool
	obj   *heap.Object
	keys  []heap.PropertyKey
	pos   int
}

func (r *iterRecord) EachRef(visit func(heap.Node)) {
	for _, v := range [...]heap.Value{r.iterator, r.next} {
		if n := v.Node(); n != nil {
			visit(n)
		}
	}
	if r.obj != nil {
		visit(r.obj)
	}
}

func iterRecordOf(v heap.Value) *iterRecord {
	o := v.AsObject()
	if o == nil {
		return nil
	}
	r, _ := o.Internal.(*iterRecord)
	return r
}

// wrapRecord stores rec in a heap object so that it can live in a register
// or be attached to a scope.
func (vm *VM) wrapRecord(rec *iterRecord) heap.Value {
	vm.h.Retain(rec.iterator)
	vm.h.Retain(rec.next)
	if rec.obj != nil {
		vm.h.RetainNode(rec.obj)
	}
	return heap.ObjectValue(vm.h.NewObjectOf("IteratorRecord", nil, rec))
}

// getIterator implements GetIterator for sync and async iteration.
func (vm *VM) getIterator(v heap.Value, async bool) (*iterRecord, error) {
	r := vm.realm
	if v.IsNullish() {
		return nil, r.NewTypeError("%s is not iterable", v.Inspect())
	}
	proto := r.ProtoOf(v)
	if async {
		m, err := vm.h.GetMethod(v, heap.SymbolKey(heap.SymAsyncIterator), proto)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return vm.openIterator(v, m, true)
		}
	}
	m, err := vm.h.GetMethod(v, heap.SymbolKey(heap.SymIterator), proto)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, r.NewTypeError("%s is not iterable", describe(v))
	}
	return vm.openIterator(v, m, false)
}

func (vm *VM) openIterator(v heap.Value, method *heap.Object, async bool) (*iterRecord, error) {
	it, err := vm.call(method, v, nil)
	if err != nil {
		return nil, err
	}
	if !it.IsObject() {
		return nil, vm.realm.NewTypeError("Result of the Symbol.iterator method is not an object")
	}
	next, err := vm.h.Get(it.AsObject(), heap.StringKey("next"), it)
	if err != nil {
		return nil, err
	}
	return &iterRecord{iterator: it, next: next, async: async}, nil
}

// forInRecord snapshots the enumerable keys of v.
func (vm *VM) forInRecord(v heap.Value) (*iterRecord, error) {
	rec := &iterRecord{forIn: true, iterator: heap.Undefined, next: heap.Undefined}
	if v.IsNullish() {
		rec.done = true
		return rec, nil
	}
	o, err := vm.realm.ToObject(v)
	if err != nil {
		return nil, err
	}
	rec.obj = o
	rec.keys = vm.h.CollectEnumerableKeys(o)
	return rec, nil
}

// step advances rec. ok is false once the iterator is exhausted.
func (vm *VM) step(rec *iterRecord) (v heap.Value, ok bool, err error) {
	if rec.done {
		return heap.Undefined, false, nil
	}
	if rec.forIn {
		for rec.pos < len(rec.keys) {
			k := rec.keys[rec.pos]
			rec.pos++
			if vm.h.HasProperty(rec.obj, k) {
				return k.Value(), true, nil
			}
		}
		rec.done = true
		return heap.Undefined, false, nil
	}
	res, err := vm.nextResult(rec, nil)
	if err != nil {
		return heap.Undefined, false, err
	}
	return vm.unwrapResult(rec, res)
}

// nextResult calls the next method and returns the raw result.
func (vm *VM) nextResult(rec *iterRecord, args []heap.Value) (heap.Value, error) {
	res, err := vm.callValue(rec.next, rec.iterator, args)
	if err != nil {
		rec.done = true
		return heap.Undefined, err
	}
	return res, nil
}

// unwrapResult reads done and value from an iterator result.
func (vm *VM) unwrapResult(rec *iterRecord, res heap.Value) (heap.Value, bool, error) {
	o := res.AsObject()
	if o == nil {
		rec.done = true
		return heap.Undefined, false, vm.realm.NewTypeError("Iterator result %s is not an object", res.Inspect())
	}
	done, err := vm.h.Get(o, heap.StringKey("done"), res)
	if err != nil {
		rec.done = true
		return heap.Undefined, false, err
	}
	if heap.ToBoolean(done) {
		rec.done = true
		return heap.Undefined, false, nil
	}
	v, err := vm.h.Get(o, heap.StringKey("value"), res)
	if err != nil {
		rec.done = true
		return heap.Undefined, false, err
	}
	return v, true, nil
}

// closeIterator calls the return method of an unfinished iterator.
func (vm *VM) closeIterator(rec *iterRecord) error {
	if rec.done {
		return nil
	}
	rec.done = true
	if rec.forIn {
		return nil
	}
	ret, err := vm.h.GetMethod(rec.iterator, heap.StringKey("return"), vm.realm.ProtoOf(rec.iterator))
	if err != nil {
		return err
	}
	if ret == nil {
		return nil
	}
	res, err := vm.call(ret, rec.iterator, nil)
	if err != nil {
		return err
	}
	if !res.IsObject() {
		return vm.realm.NewTypeError("Iterator result %s is not an object", res.Inspect())
	}
	return nil
}

// iterate feeds every element of iterable v to yield. Dense arrays with
// the builtin iterator are read directly.
func (vm *VM) iterate(v heap.Value, yield func(heap.Value)) error {
	if o := v.AsObject(); o != nil && o.IsArray() && o.IsDense() && vm.hasBuiltinIterator(o) {
		for _, e := range o.Values() {
			if e.IsHole() {
				e = heap.Undefined
			}
			yield(e)
		}
		return nil
	}
	rec, err := vm.getIterator(v, false)
	if err != nil {
		return err
	}
	mark := vm.keep(rec.iterator, rec.next)
	defer vm.drop(mark)
	for {
		e, ok, err := vm.step(rec)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		yield(e)
	}
}

// hasBuiltinIterator reports whether o iterates with the unmodified array
// iterator.
func (vm *VM) hasBuiltinIterator(o *heap.Object) bool {
	values := vm.realm.Intrinsic("ArrayValues")
	if values == nil {
		return false
	}
	d, ok := findProperty(o, heap.SymbolKey(heap.SymIterator))
	return ok && !d.IsAccessor() && d.Value.AsObject() == values
}

func findProperty(o *heap.Object, k heap.PropertyKey) (heap.Descriptor, bool) {
	for cur := o; cur != nil; cur = cur.Prototype() {
		if d, ok := cur.GetOwnProperty(k); ok {
			return d, true
		}
	}
	return heap.Descriptor{}, false
}

// describe names a value in "is not iterable" style messages.
func describe(v heap.Value) string {
	if o := v.AsObject(); o != nil {
		if c := o.Callable(); c != nil {
			if n := c.FunctionName(); n != "" {
				return n
			}
			return "function"
		}
		return "object"
	}
	return v.Inspect()
}
