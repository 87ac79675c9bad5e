package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
)

// execute pushes f and runs it until it returns, throws or suspends.
func (vm *VM) execute(f *CallFrame) (heap.Value, error) {
	if len(vm.frames) >= vm.cfg.MaxCallDepth {
		return heap.Undefined, vm.realm.NewRangeError("Maximum call stack size exceeded")
	}
	if vm.h.Exhausted() {
		return heap.Undefined, vm.fatalf(f, "heap exhausted")
	}
	vm.frames = append(vm.frames, f)
	prev := vm.inHost
	vm.inHost = false
	if vm.cfg.AutoCollect && vm.h.NeedsCollection() {
		vm.Collect()
	}
	v, err := vm.run(f)
	vm.inHost = prev
	vm.frames[len(vm.frames)-1] = nil
	vm.frames = vm.frames[:len(vm.frames)-1]
	return v, err
}

// call invokes any callable object.
func (vm *VM) call(fn *heap.Object, this heap.Value, args []heap.Value) (heap.Value, error) {
	switch c := fn.Internal.(type) {
	case *Closure:
		if c.Blueprint.Has(bytecode.FuncClassConstructor) {
			return heap.Undefined, vm.realm.NewTypeError("Class constructor %s cannot be invoked without 'new'", c.Blueprint.Name)
		}
		f := vm.closureFrame(fn, c, this, args, heap.Undefined)
		return vm.enter(f)
	case *realm.NativeFunction:
		mark, prev := vm.enterHost()
		defer vm.leaveHost(mark, prev)
		vm.rootForHost(this)
		vm.rootForHost(args...)
		return c.Fn(args, this, vm.realm)
	case *realm.BoundFunction:
		all := make([]heap.Value, 0, len(c.Args)+len(args))
		all = append(append(all, c.Args...), args...)
		return vm.call(c.Target, c.This, all)
	}
	return heap.Undefined, vm.realm.NewTypeError("%s is not a function", heap.ObjectValue(fn).Inspect())
}

// callValue calls fn after checking that it is callable.
func (vm *VM) callValue(fn heap.Value, this heap.Value, args []heap.Value) (heap.Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return heap.Undefined, vm.realm.NewTypeError("%s is not a function", fn.Inspect())
	}
	return vm.call(o, this, args)
}

// enter starts a prepared closure frame according to its kind.
func (vm *VM) enter(f *CallFrame) (heap.Value, error) {
	bp := f.closure.Blueprint
	switch {
	case bp.Has(bytecode.FuncGenerator):
		return vm.startGenerator(f)
	case bp.Has(bytecode.FuncAsync):
		return vm.startAsync(f)
	}
	return vm.execute(f)
}

// closureFrame prepares the frame of a compiled function: its function
// scope, this binding and simple parameters.
func (vm *VM) closureFrame(fn *heap.Object, cl *Closure, this heap.Value, args []heap.Value, newTarget heap.Value) *CallFrame {
	bp := cl.Blueprint
	f := newFrame(bp.Body, nil)
	f.closure = cl
	f.fn = fn
	f.args = args
	f.newTarget = newTarget
	f.name = bp.Name
	f.file = cl.File
	f.strict = bp.Has(bytecode.FuncStrict) || bp.Body.Strict

	flags := scope.FlagFunction
	if bp.Has(bytecode.FuncArrow) {
		flags |= scope.FlagArrow
	}
	env := scope.New(vm.h, cl.Scope, flags)
	if !bp.Has(bytecode.FuncArrow) {
		if !this.IsUninitialized() {
			this = vm.coerceThis(f.strict, this)
		}
		env.SetFunction(fn, this, newTarget, cl.Home)
		f.this = this
	}
	f.scope, f.base = env, env

	if bp.Has(bytecode.FuncSimpleParams) {
		for _, name := range bp.Params {
			if name != "" {
				env.Declare(name, scope.Param)
			}
		}
		for i, name := range bp.Params {
			if name == "" {
				continue
			}
			v := heap.Undefined
			if i < len(args) {
				v = args[i]
			}
			env.Initialize(name, v)
		}
	}
	return f
}

// coerceThis applies the sloppy-mode this conversion.
func (vm *VM) coerceThis(strict bool, this heap.Value) heap.Value {
	if strict {
		return this
	}
	if this.IsNullish() {
		return heap.ObjectValue(vm.realm.GlobalObject)
	}
	if !this.IsObject() {
		o, err := vm.realm.ToObject(this)
		if err == nil {
			return heap.ObjectValue(o)
		}
	}
	return this
}

// construct runs fn as a constructor with the given new.target.
func (vm *VM) construct(fn *heap.Object, args []heap.Value, newTarget *heap.Object) (heap.Value, error) {
	r := vm.realm
	switch c := fn.Internal.(type) {
	case *Closure:
		if !c.IsConstructor() {
			return heap.Undefined, r.NewTypeError("%s is not a constructor", c.Blueprint.Name)
		}
		nt := heap.ObjectValue(newTarget)
		if c.Blueprint.Has(bytecode.FuncDerived) {
			f := vm.closureFrame(fn, c, heap.Uninitialized, args, nt)
			res, err := vm.execute(f)
			if err != nil {
				return heap.Undefined, err
			}
			if res.IsObject() {
				return res, nil
			}
			if !res.IsUndefined() {
				return heap.Undefined, r.NewTypeError("Derived constructors may only return object or undefined")
			}
			return f.base.This()
		}
		proto, err := vm.prototypeFor(newTarget, realm.ObjectPrototype)
		if err != nil {
			return heap.Undefined, err
		}
		obj := vm.h.NewObject(proto)
		mark := vm.keep(heap.ObjectValue(obj))
		defer vm.drop(mark)
		if err := vm.initFields(fn, obj); err != nil {
			return heap.Undefined, err
		}
		f := vm.closureFrame(fn, c, heap.ObjectValue(obj), args, nt)
		res, err := vm.execute(f)
		if err != nil {
			return heap.Undefined, err
		}
		if res.IsObject() {
			return res, nil
		}
		return heap.ObjectValue(obj), nil
	case *realm.NativeFunction:
		if c.Ctor == nil {
			return heap.Undefined, r.NewTypeError("%s is not a constructor", c.Name)
		}
		mark, prev := vm.enterHost()
		defer vm.leaveHost(mark, prev)
		vm.rootForHost(heap.ObjectValue(newTarget))
		vm.rootForHost(args...)
		return c.Ctor(args, newTarget, r)
	case *realm.BoundFunction:
		if !c.IsConstructor() {
			break
		}
		if newTarget == fn {
			newTarget = c.Target
		}
		all := make([]heap.Value, 0, len(c.Args)+len(args))
		all = append(append(all, c.Args...), args...)
		return vm.construct(c.Target, all, newTarget)
	}
	return heap.Undefined, r.NewTypeError("%s is not a constructor", heap.ObjectValue(fn).Inspect())
}

// prototypeFor reads newTarget.prototype, falling back to the named
// intrinsic when it is not an object.
func (vm *VM) prototypeFor(newTarget *heap.Object, fallback string) (*heap.Object, error) {
	pv, err := vm.h.Get(newTarget, heap.StringKey("prototype"), heap.ObjectValue(newTarget))
	if err != nil {
		return nil, err
	}
	if pv.IsObject() {
		return pv.AsObject(), nil
	}
	return vm.realm.Intrinsic(fallback), nil
}

// initFields runs the instance initializer of ctor on obj.
func (vm *VM) initFields(ctor *heap.Object, obj *heap.Object) error {
	cl := closureOf(ctor)
	if cl == nil || cl.Fields == nil {
		return nil
	}
	_, err := vm.call(cl.Fields, heap.ObjectValue(obj), nil)
	return err
}

// superCall implements super(...args) inside a derived constructor.
func (vm *VM) superCall(f *CallFrame, args []heap.Value) (heap.Value, error) {
	r := vm.realm
	callee := f.scope.Callee()
	if callee == nil {
		return heap.Undefined, r.NewSyntaxError("'super' keyword unexpected here")
	}
	parent := callee.Prototype()
	if parent == nil || !parent.IsConstructor() {
		return heap.Undefined, r.NewTypeError("Super constructor %s of anonymous class is not a constructor", heap.ObjectValue(parent).Inspect())
	}
	nt := f.scope.NewTarget().AsObject()
	if nt == nil {
		nt = callee
	}
	res, err := vm.construct(parent, args, nt)
	if err != nil {
		return heap.Undefined, err
	}
	if err := f.scope.BindThis(res); err != nil {
		return heap.Undefined, err
	}
	if err := vm.initFields(callee, res.AsObject()); err != nil {
		return heap.Undefined, err
	}
	return res, nil
}

// argumentsObject creates the unmapped arguments object of f.
func (vm *VM) argumentsObject(f *CallFrame) *heap.Object {
	if f.arguments != nil {
		return f.arguments
	}
	r := vm.realm
	o := vm.h.NewObjectOf("Arguments", r.Intrinsic(realm.ObjectPrototype), nil)
	for i, a := range f.args {
		o.DefineOwnProperty(heap.IndexKey(uint32(i)), heap.DataDesc(a, heap.DefaultFlags))
	}
	o.DefineHidden("length", heap.IntValue(len(f.args)))
	if values := r.Intrinsic("ArrayValues"); values != nil {
		o.DefineHiddenKey(heap.SymbolKey(heap.SymIterator), heap.ObjectValue(values))
	}
	if !f.strict && f.fn != nil {
		o.DefineHidden("callee", heap.ObjectValue(f.fn))
	}
	f.arguments = o
	return o
}

func (vm *VM) restArgs(f *CallFrame, from int) *heap.Object {
	var rest []heap.Value
	if from < len(f.args) {
		rest = append(rest, f.args[from:]...)
	}
	return vm.realm.NewArray(rest)
}
