package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/scope"
)

// constant materialises pool entry k of the running module.
func (vm *VM) constant(f *CallFrame, k int) (heap.Value, error) {
	pool := f.module.Data.Constants
	if k >= len(pool) {
		return heap.Undefined, vm.fatalf(f, "constant %d out of range", k)
	}
	c := &pool[k]
	switch c.Kind {
	case bytecode.ConstUndefined:
		return heap.Undefined, nil
	case bytecode.ConstNull:
		return heap.Null, nil
	case bytecode.ConstBool:
		return heap.BooleanValue(c.Bool), nil
	case bytecode.ConstNumber:
		return heap.NumberValue(c.Number), nil
	case bytecode.ConstString:
		return heap.NewString(c.Str), nil
	case bytecode.ConstBigInt:
		b, ok := heap.StringToBigInt(c.Str)
		if !ok {
			return heap.Undefined, vm.realm.NewSyntaxError("Cannot convert %s to a BigInt", c.Str)
		}
		return heap.NewBigInt(b), nil
	case bytecode.ConstRegex:
		ctor := vm.realm.Intrinsic("RegExp")
		if ctor == nil {
			return heap.Undefined, vm.realm.NewSyntaxError("Invalid regular expression: /%s/: not supported", c.Str)
		}
		return vm.construct(ctor, []heap.Value{heap.NewString(c.Str), heap.NewString(c.Flags)}, ctor)
	case bytecode.ConstBlueprint:
		return heap.ObjectValue(vm.makeClosure(c.Blueprint, f.scope, f.file)), nil
	case bytecode.ConstTemplate:
		return vm.templateObject(f, k)
	}
	return heap.Undefined, vm.fatalf(f, "bad constant kind %s", c.Kind)
}

func (vm *VM) blueprint(f *CallFrame, k int) (*bytecode.FunctionBlueprint, error) {
	pool := f.module.Data.Constants
	if k >= len(pool) || pool[k].Kind != bytecode.ConstBlueprint {
		return nil, vm.fatalf(f, "constant %d is not a function blueprint", k)
	}
	return pool[k].Blueprint, nil
}

// templateObject returns the frozen strings array of a tagged template.
// Each call site gets one array for the life of the VM.
func (vm *VM) templateObject(f *CallFrame, k int) (heap.Value, error) {
	key := templateKey{module: f.module, index: k}
	if o, ok := vm.templates[key]; ok {
		return heap.ObjectValue(o), nil
	}
	pool := f.module.Data.Constants
	if k >= len(pool) || pool[k].Kind != bytecode.ConstTemplate {
		return heap.Undefined, vm.fatalf(f, "constant %d is not a template", k)
	}
	parts := pool[k].Parts
	cooked := make([]heap.Value, len(parts))
	raw := make([]heap.Value, len(parts))
	for i, p := range parts {
		cooked[i] = heap.Undefined
		if p.CookedValid {
			cooked[i] = heap.NewString(p.Cooked)
		}
		raw[i] = heap.NewString(p.Raw)
	}
	rawArr := vm.realm.NewArray(raw)
	rawArr.Freeze()
	arr := vm.realm.NewArray(cooked)
	arr.DefineOwnProperty(heap.StringKey("raw"), heap.DataDesc(heap.ObjectValue(rawArr), 0))
	arr.Freeze()
	vm.h.RetainNode(arr)
	vm.templates[key] = arr
	return heap.ObjectValue(arr), nil
}

// declare creates a binding in the current scope. Private names get their
// symbol identity here, once per class evaluation.
func (vm *VM) declare(f *CallFrame, name string, kind scope.Kind) error {
	if err := f.scope.Declare(name, kind); err != nil {
		return err
	}
	if kind == scope.PrivateName {
		sym := &heap.Symbol{Description: name, HasDescription: true, Private: true}
		return f.scope.Initialize(name, heap.SymbolValue(sym))
	}
	return nil
}

func (vm *VM) getMember(obj heap.Value, k heap.PropertyKey) (heap.Value, error) {
	return vm.realm.GetKey(obj, k)
}

func (vm *VM) getComputed(obj, key heap.Value) (heap.Value, error) {
	if obj.IsNullish() {
		return heap.Undefined, vm.realm.NewTypeError("Cannot read properties of %s (reading '%s')", obj.Inspect(), key.Inspect())
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return heap.Undefined, err
	}
	return vm.realm.GetKey(obj, k)
}

func (vm *VM) setComputed(f *CallFrame, obj, key, v heap.Value) error {
	if obj.IsNullish() {
		return vm.realm.NewTypeError("Cannot set properties of %s (setting '%s')", obj.Inspect(), key.Inspect())
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return err
	}
	return vm.realm.Set(obj, k, v, f.strict)
}

func (vm *VM) deleteMember(f *CallFrame, obj, key heap.Value) (heap.Value, error) {
	o, err := vm.realm.ToObject(obj)
	if err != nil {
		return heap.Undefined, err
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return heap.Undefined, err
	}
	if o.Delete(k) {
		return heap.True, nil
	}
	if f.strict {
		return heap.Undefined, vm.realm.NewTypeError("Cannot delete property '%s' of %s", k.String(), describe(obj))
	}
	return heap.False, nil
}

// superBase is the object super property references start from.
func (vm *VM) superBase(f *CallFrame) (*heap.Object, heap.Value, error) {
	home := f.scope.HomeObject()
	if home == nil {
		return nil, heap.Undefined, vm.realm.NewSyntaxError("'super' keyword unexpected here")
	}
	this, err := f.scope.This()
	if err != nil {
		return nil, heap.Undefined, err
	}
	return home.Prototype(), this, nil
}

func (vm *VM) loadSuper(f *CallFrame, key heap.Value) (heap.Value, error) {
	proto, this, err := vm.superBase(f)
	if err != nil {
		return heap.Undefined, err
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return heap.Undefined, err
	}
	if proto == nil {
		return heap.Undefined, vm.realm.NewTypeError("Cannot read properties of null (reading '%s')", k.String())
	}
	return vm.h.Get(proto, k, this)
}

func (vm *VM) storeSuper(f *CallFrame, key, v heap.Value) error {
	proto, this, err := vm.superBase(f)
	if err != nil {
		return err
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return err
	}
	if proto == nil {
		return vm.realm.NewTypeError("Cannot set properties of null (setting '%s')", k.String())
	}
	ok, err := vm.h.Set(proto, k, v, this)
	if err != nil {
		return err
	}
	if !ok && f.strict {
		return vm.realm.NewTypeError("Cannot assign to read only property '%s' of object", k.String())
	}
	return nil
}

func privateName(v heap.Value) *heap.Symbol {
	if s := v.AsSymbol(); s != nil && s.Private {
		return s
	}
	return nil
}

func (vm *VM) getPrivate(obj, name heap.Value) (heap.Value, error) {
	r := vm.realm
	sym := privateName(name)
	o := obj.AsObject()
	if sym == nil || o == nil {
		return heap.Undefined, r.NewTypeError("Cannot read private member from an object whose class did not declare it")
	}
	v, getter, accessor, ok := o.GetPrivate(sym)
	if !ok {
		return heap.Undefined, r.NewTypeError("Cannot read private member %s from an object whose class did not declare it", sym.Description)
	}
	if accessor {
		if getter == nil {
			return heap.Undefined, r.NewTypeError("'%s' was defined without a getter", sym.Description)
		}
		return vm.call(getter, obj, nil)
	}
	return v, nil
}

func (vm *VM) setPrivate(obj, name, v heap.Value) error {
	r := vm.realm
	sym := privateName(name)
	o := obj.AsObject()
	if sym == nil || o == nil {
		return r.NewTypeError("Cannot write private member to an object whose class did not declare it")
	}
	if _, _, accessor, ok := o.GetPrivate(sym); ok && accessor {
		setter, _, _ := o.SetPrivate(sym, v)
		if setter == nil {
			return r.NewTypeError("'%s' was defined without a setter", sym.Description)
		}
		_, err := vm.call(setter, obj, []heap.Value{v})
		return err
	}
	_, writable, ok := o.SetPrivate(sym, v)
	if !ok {
		return r.NewTypeError("Cannot write private member %s to an object whose class did not declare it", sym.Description)
	}
	if !writable {
		return r.NewTypeError("Private method '%s' is not writable", sym.Description)
	}
	return nil
}

func (vm *VM) definePrivate(obj, name, v heap.Value) error {
	r := vm.realm
	sym := privateName(name)
	o := obj.AsObject()
	if sym == nil || o == nil {
		return r.NewTypeError("Cannot define a private field on a non-object")
	}
	if !o.DefinePrivate(sym, v, false) {
		return r.NewTypeError("Cannot initialize %s twice on the same object", sym.Description)
	}
	return nil
}

func (vm *VM) hasPrivate(name, obj heap.Value) (heap.Value, error) {
	o := obj.AsObject()
	if o == nil {
		return heap.Undefined, vm.realm.NewTypeError("Cannot use 'in' operator to search for '%s' in %s", name.Inspect(), obj.Inspect())
	}
	sym := privateName(name)
	return heap.BooleanValue(sym != nil && o.HasPrivate(sym)), nil
}

// opGetIterator opens an iterator over acc. Attached modes hand the record
// to the current scope so that abrupt exits close it.
func (vm *VM) opGetIterator(f *CallFrame, mode int) error {
	var rec *iterRecord
	var err error
	switch mode {
	case iterForIn:
		rec, err = vm.forInRecord(f.acc)
	case iterAsync, iterAsyncDetached:
		rec, err = vm.getIterator(f.acc, true)
	default:
		rec, err = vm.getIterator(f.acc, false)
	}
	if err != nil {
		return err
	}
	v := vm.wrapRecord(rec)
	switch mode {
	case iterSync, iterAsync, iterForIn:
		f.scope.AttachIterator(v)
	}
	f.acc = v
	return nil
}

// defineField creates an enumerable own data property, as object literals
// and class fields do.
func (vm *VM) defineField(obj, key, v heap.Value) error {
	o := obj.AsObject()
	if o == nil {
		return vm.realm.NewTypeError("Cannot define property on %s", describe(obj))
	}
	k, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return err
	}
	if fn := v.AsObject(); fn != nil {
		if cl := closureOf(fn); cl != nil && cl.Blueprint.Name == "" && !cl.Blueprint.Has(bytecode.FuncMethod) {
			vm.renameMethod(fn, keyFunctionName(k))
		}
	}
	if !o.DefineOwnProperty(k, heap.DataDesc(v, heap.DefaultFlags)) {
		return vm.realm.NewTypeError("Cannot redefine property: %s", k.String())
	}
	return nil
}

// copyDataProps copies the own enumerable properties of src onto dst,
// skipping the keys in exclude.
func (vm *VM) copyDataProps(dst *heap.Object, src heap.Value, exclude map[heap.PropertyKey]bool) error {
	if dst == nil {
		return vm.realm.NewTypeError("Cannot copy properties onto a non-object")
	}
	if src.IsNullish() {
		return nil
	}
	if src.IsString() {
		units := heap.ToUTF16(src.AsString())
		for i := range units {
			k := heap.IndexKey(uint32(i))
			if !exclude[k] {
				dst.DefineOwnProperty(k, heap.DataDesc(heap.NewString(heap.FromUTF16(units[i:i+1])), heap.DefaultFlags))
			}
		}
		return nil
	}
	o := src.AsObject()
	if o == nil {
		return nil
	}
	for _, k := range o.OwnKeys() {
		if exclude[k] {
			continue
		}
		d, ok := o.GetOwnProperty(k)
		if !ok || !d.Enumerable() {
			continue
		}
		v, err := vm.h.Get(o, k, src)
		if err != nil {
			return err
		}
		dst.DefineOwnProperty(k, heap.DataDesc(v, heap.DefaultFlags))
	}
	return nil
}

// copyRest builds the rest object of an object pattern.
func (vm *VM) copyRest(src, excluded heap.Value) (heap.Value, error) {
	if src.IsNullish() {
		return heap.Undefined, vm.realm.NewTypeError("Cannot destructure '%s' as it is %s.", src.Inspect(), src.Inspect())
	}
	exclude := map[heap.PropertyKey]bool{}
	if arr := excluded.AsObject(); arr != nil {
		for _, v := range arr.Values() {
			k, err := vm.h.ToPropertyKey(v)
			if err != nil {
				return heap.Undefined, err
			}
			exclude[k] = true
		}
	}
	dst := vm.realm.NewObject()
	mark := vm.keep(heap.ObjectValue(dst))
	defer vm.drop(mark)
	if err := vm.copyDataProps(dst, src, exclude); err != nil {
		return heap.Undefined, err
	}
	return heap.ObjectValue(dst), nil
}
