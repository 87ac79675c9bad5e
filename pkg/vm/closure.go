package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
)

// Closure is the internal slot of compiled function objects: a blueprint
// paired with the scope it was created in.
type Closure struct {
	Blueprint *bytecode.FunctionBlueprint
	Scope     *scope.Scope
	// Home is the object super lookups start from.
	Home *heap.Object
	// Fields is the instance initializer of a class constructor.
	Fields *heap.Object
	File   string
}

func (c *Closure) EachRef(visit func(heap.Node)) {
	if c.Scope != nil {
		visit(c.Scope)
	}
	if c.Home != nil {
		visit(c.Home)
	}
	if c.Fields != nil {
		visit(c.Fields)
	}
}

func (c *Closure) FunctionName() string { return c.Blueprint.Name }

// SourceText is the source of the function literal, used by
// Function.prototype.toString.
func (c *Closure) SourceText() string { return c.Blueprint.SourceText }

func (c *Closure) IsConstructor() bool {
	bp := c.Blueprint
	if bp.Has(bytecode.FuncClassConstructor) {
		return true
	}
	const notConstructible = bytecode.FuncArrow | bytecode.FuncMethod | bytecode.FuncGenerator |
		bytecode.FuncAsync | bytecode.FuncGetter | bytecode.FuncSetter | bytecode.FuncFieldInit
	return bp.Flags&notConstructible == 0
}

func closureOf(o *heap.Object) *Closure {
	if o == nil {
		return nil
	}
	c, _ := o.Internal.(*Closure)
	return c
}

func (vm *VM) functionProto(bp *bytecode.FunctionBlueprint) *heap.Object {
	r := vm.realm
	switch {
	case bp.Has(bytecode.FuncAsync) && bp.Has(bytecode.FuncGenerator):
		if p := r.Intrinsic("AsyncGeneratorFunctionPrototype"); p != nil {
			return p
		}
	case bp.Has(bytecode.FuncGenerator):
		if p := r.Intrinsic("GeneratorFunctionPrototype"); p != nil {
			return p
		}
	case bp.Has(bytecode.FuncAsync):
		if p := r.Intrinsic(realm.AsyncFunctionPrototype); p != nil {
			return p
		}
	}
	return r.Intrinsic(realm.FunctionPrototype)
}

// makeClosure creates a function object for bp over env.
func (vm *VM) makeClosure(bp *bytecode.FunctionBlueprint, env *scope.Scope, file string) *heap.Object {
	h := vm.h
	cl := &Closure{Blueprint: bp, Scope: env, File: file}
	if env != nil {
		h.RetainNode(env)
	}
	fn := h.NewObjectOf("Function", vm.functionProto(bp), cl)
	realm.DefineFunctionMeta(fn, bp.Name, bp.Length)
	switch {
	case bp.Has(bytecode.FuncGenerator):
		protoName := realm.GeneratorPrototype
		if bp.Has(bytecode.FuncAsync) {
			protoName = realm.AsyncGeneratorPrototype
		}
		p := h.NewObject(vm.realm.Intrinsic(protoName))
		fn.DefineOwnProperty(heap.StringKey("prototype"), heap.DataDesc(heap.ObjectValue(p), heap.Writable))
	case cl.IsConstructor() && !bp.Has(bytecode.FuncClassConstructor):
		p := vm.realm.NewObject()
		p.DefineHidden("constructor", heap.ObjectValue(fn))
		fn.DefineOwnProperty(heap.StringKey("prototype"), heap.DataDesc(heap.ObjectValue(p), heap.Writable))
	}
	return fn
}

// setHome records the home object of a method closure.
func (vm *VM) setHome(fn *heap.Object, home *heap.Object) {
	cl := closureOf(fn)
	if cl == nil {
		return
	}
	vm.h.RetainNode(home)
	if cl.Home != nil {
		vm.h.ReleaseNode(cl.Home)
	}
	cl.Home = home
}

// makeClass creates the constructor of a class literal. super is the
// evaluated heritage when hasSuper is set.
func (vm *VM) makeClass(f *CallFrame, bp *bytecode.FunctionBlueprint, super heap.Value, hasSuper bool) (*heap.Object, error) {
	r := vm.realm
	protoParent := r.Intrinsic(realm.ObjectPrototype)
	ctorParent := r.Intrinsic(realm.FunctionPrototype)
	if hasSuper {
		switch {
		case super.IsNull():
			protoParent = nil
		case super.IsObject() && super.AsObject().IsConstructor():
			sc := super.AsObject()
			pv, err := vm.h.Get(sc, heap.StringKey("prototype"), super)
			if err != nil {
				return nil, err
			}
			switch {
			case pv.IsNull():
				protoParent = nil
			case pv.IsObject():
				protoParent = pv.AsObject()
			default:
				return nil, r.NewTypeError("Class extends value does not have valid prototype property %s", pv.Inspect())
			}
			ctorParent = sc
		default:
			return nil, r.NewTypeError("Class extends value %s is not a constructor or null", super.Inspect())
		}
	}
	proto := vm.h.NewObject(protoParent)
	ctor := vm.makeClosure(bp, f.scope, f.file)
	ctor.SetPrototypeOf(ctorParent)
	ctor.DefineOwnProperty(heap.StringKey("prototype"), heap.DataDesc(heap.ObjectValue(proto), 0))
	proto.DefineHidden("constructor", heap.ObjectValue(ctor))
	vm.setHome(ctor, proto)
	return ctor, nil
}

// Method kinds of DefineMethod; methodEnumerable is or-ed in for object
// literals.
const (
	methodPlain      = 0
	methodGetter     = 1
	methodSetter     = 2
	methodEnumerable = 4
)

// defineMethod installs fn on target under key. Private symbol keys define
// private methods and accessors.
func (vm *VM) defineMethod(target *heap.Object, key heap.Value, fn *heap.Object, kind int) error {
	r := vm.realm
	enumerable := kind&methodEnumerable != 0
	kind &^= methodEnumerable

	if key.IsSymbol() && key.AsSymbol().Private {
		sym := key.AsSymbol()
		switch kind {
		case methodGetter:
			vm.renameMethod(fn, "get "+sym.Description)
			target.DefinePrivateAccessor(sym, fn, nil)
		case methodSetter:
			vm.renameMethod(fn, "set "+sym.Description)
			target.DefinePrivateAccessor(sym, nil, fn)
		default:
			if !target.DefinePrivate(sym, heap.ObjectValue(fn), true) {
				return r.NewTypeError("Cannot initialize %s twice on the same object", sym.Description)
			}
		}
		return nil
	}

	pk, err := vm.h.ToPropertyKey(key)
	if err != nil {
		return err
	}
	if cl := closureOf(fn); cl != nil && cl.Blueprint.Name == "" {
		vm.renameMethod(fn, keyFunctionName(pk))
	}
	flags := heap.HiddenFlags
	if enumerable {
		flags |= heap.Enumerable
	}
	switch kind {
	case methodGetter, methodSetter:
		get, set := fn, (*heap.Object)(nil)
		prefix := "get "
		if kind == methodSetter {
			get, set = nil, fn
			prefix = "set "
		}
		vm.renameMethod(fn, prefix+keyFunctionName(pk))
		if d, ok := target.GetOwnProperty(pk); ok && d.IsAccessor() && d.Configurable() {
			if get == nil {
				get = d.Getter
			}
			if set == nil {
				set = d.Setter
			}
		}
		if !target.DefineOwnProperty(pk, heap.AccessorDesc(get, set, flags&^heap.Writable)) {
			return r.NewTypeError("Cannot redefine property: %s", pk.String())
		}
	default:
		if !target.DefineOwnProperty(pk, heap.DataDesc(heap.ObjectValue(fn), flags)) {
			return r.NewTypeError("Cannot redefine property: %s", pk.String())
		}
	}
	return nil
}

// keyFunctionName is the name a function gets from a property key.
func keyFunctionName(k heap.PropertyKey) string {
	if k.IsSymbol() {
		s := k.Symbol()
		if !s.HasDescription {
			return ""
		}
		return "[" + s.Description + "]"
	}
	return k.Name()
}

func (vm *VM) renameMethod(fn *heap.Object, name string) {
	fn.DefineOwnProperty(heap.StringKey("name"), heap.DataDesc(heap.NewString(name), heap.Configurable))
}
