package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string { return "Function" }

func (f *FunctionInitializer) Priority() int { return PriorityFunction }

// sourced is implemented by compiled functions that remember their text.
type sourced interface {
	SourceText() string
}

func (f *FunctionInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Intrinsic(realm.FunctionPrototype)

	ctor := dynamicFunctionCtor(r, "Function", "function", proto)

	r.Method(proto, "call", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if _, err := requireCallable(r, this); err != nil {
			return heap.Undefined, err
		}
		var rest []heap.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return r.Call(this, arg(args, 0), rest...)
	})
	r.Method(proto, "apply", 2, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if _, err := requireCallable(r, this); err != nil {
			return heap.Undefined, err
		}
		list, err := createListFromArrayLike(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return r.Call(this, arg(args, 0), list...)
	})
	r.Method(proto, "bind", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		target, err := requireCallable(r, this)
		if err != nil {
			return heap.Undefined, r.NewTypeError("Bind must be called on a function")
		}
		var rest []heap.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return heap.ObjectValue(r.NewBoundFunction(target, arg(args, 0), rest)), nil
	})
	r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o := this.AsObject()
		if o == nil || !o.IsCallable() {
			return heap.Undefined, r.NewTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		c := o.Callable()
		if s, ok := c.(sourced); ok && s.SourceText() != "" {
			return str(s.SourceText()), nil
		}
		return str("function " + c.FunctionName() + "() { [native code] }"), nil
	})
	hasInstance := r.NewNativeFunction("[Symbol.hasInstance]", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return ordinaryHasInstance(r, this, arg(args, 0))
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymHasInstance), heap.DataDesc(heap.ObjectValue(hasInstance), 0))
	if err := ctx.Intrinsic("FunctionHasInstance", hasInstance); err != nil {
		return err
	}
	realm.DefineFunctionMeta(proto, "", 0)

	if err := ctx.Intrinsic("Function", ctor); err != nil {
		return err
	}
	return ctx.DefineGlobal("Function", heap.ObjectValue(ctor))
}

// dynamicFunctionCtor creates Function and its generator and async
// siblings, which compile their arguments through the realm hook.
func dynamicFunctionCtor(r *realm.Realm, name, kind string, proto *heap.Object) *heap.Object {
	build := func(args []heap.Value, r *realm.Realm) (heap.Value, error) {
		if r.Hooks.DynamicFunction == nil {
			return heap.Undefined, r.NewError("%s constructor is not available", name)
		}
		var params []string
		body := ""
		for i, a := range args {
			s, err := toStr(r, a)
			if err != nil {
				return heap.Undefined, err
			}
			if i == len(args)-1 {
				body = s
			} else {
				params = append(params, s)
			}
		}
		return r.Hooks.DynamicFunction(kind, params, body)
	}
	return r.NewNativeConstructor(name, 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) { return build(args, r) },
		func(args []heap.Value, _ *heap.Object, r *realm.Realm) (heap.Value, error) { return build(args, r) },
		proto)
}

// ordinaryHasInstance walks the prototype chain of v looking for the
// prototype property of c.
func ordinaryHasInstance(r *realm.Realm, c heap.Value, v heap.Value) (heap.Value, error) {
	co := c.AsObject()
	if co == nil || !co.IsCallable() {
		return heap.False, nil
	}
	if b, ok := co.Internal.(*realm.BoundFunction); ok {
		return ordinaryHasInstance(r, heap.ObjectValue(b.Target), v)
	}
	o := v.AsObject()
	if o == nil {
		return heap.False, nil
	}
	p, err := r.Heap.Get(co, heap.StringKey("prototype"), c)
	if err != nil {
		return heap.Undefined, err
	}
	po := p.AsObject()
	if po == nil {
		return heap.Undefined, r.NewTypeError("Function has non-object prototype '%s' in instanceof check", p.Inspect())
	}
	for cur := o.Prototype(); cur != nil; cur = cur.Prototype() {
		if cur == po {
			return heap.True, nil
		}
	}
	return heap.False, nil
}
