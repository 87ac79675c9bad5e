package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type ReflectInitializer struct{}

func (ri *ReflectInitializer) Name() string { return "Reflect" }

func (ri *ReflectInitializer) Priority() int { return PriorityReflect }

func reflectTarget(r *realm.Realm, args []heap.Value, method string) (*heap.Object, error) {
	t := arg(args, 0)
	if !t.IsObject() {
		return nil, r.NewTypeError("Reflect.%s called on non-object", method)
	}
	return t.AsObject(), nil
}

// reflectKeyed wraps methods taking (target, propertyKey, ...).
func reflectKeyed(method string, fn func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, args []heap.Value) (heap.Value, error)) realm.NativeFunc {
	return func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, method)
		if err != nil {
			return heap.Undefined, err
		}
		k, err := r.Heap.ToPropertyKey(arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return fn(r, o, k, args)
	}
}

func (ri *ReflectInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	ro := r.NewObject()
	ro.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Reflect"), heap.Configurable))

	r.Method(ro, "apply", 3, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, err := requireCallable(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if !arg(args, 2).IsObject() {
			return heap.Undefined, r.NewTypeError("CreateListFromArrayLike called on non-object")
		}
		list, err := createListFromArrayLike(r, arg(args, 2))
		if err != nil {
			return heap.Undefined, err
		}
		return r.Call(heap.ObjectValue(fn), arg(args, 1), list...)
	})
	r.Method(ro, "construct", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		target := arg(args, 0)
		if o := target.AsObject(); o == nil || !o.IsConstructor() {
			return heap.Undefined, r.NewTypeError("%s is not a constructor", target.Inspect())
		}
		newTarget := target.AsObject()
		if len(args) > 2 {
			nt := args[2].AsObject()
			if nt == nil || !nt.IsConstructor() {
				return heap.Undefined, r.NewTypeError("%s is not a constructor", args[2].Inspect())
			}
			newTarget = nt
		}
		if !arg(args, 1).IsObject() {
			return heap.Undefined, r.NewTypeError("CreateListFromArrayLike called on non-object")
		}
		list, err := createListFromArrayLike(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return r.Construct(target, list, newTarget)
	})
	r.Method(ro, "defineProperty", 3, reflectKeyed("defineProperty", func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, args []heap.Value) (heap.Value, error) {
		d, err := toPropertyDescriptor(r, arg(args, 2))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(o.DefineOwnProperty(k, d)), nil
	}))
	r.Method(ro, "deleteProperty", 2, reflectKeyed("deleteProperty", func(_ *realm.Realm, o *heap.Object, k heap.PropertyKey, _ []heap.Value) (heap.Value, error) {
		return heap.BooleanValue(o.Delete(k)), nil
	}))
	r.Method(ro, "get", 2, reflectKeyed("get", func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, args []heap.Value) (heap.Value, error) {
		recv := heap.ObjectValue(o)
		if len(args) > 2 {
			recv = args[2]
		}
		return r.Heap.Get(o, k, recv)
	}))
	r.Method(ro, "set", 3, reflectKeyed("set", func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, args []heap.Value) (heap.Value, error) {
		recv := heap.ObjectValue(o)
		if len(args) > 3 {
			recv = args[3]
		}
		ok, err := r.Heap.Set(o, k, arg(args, 2), recv)
		return heap.BooleanValue(ok), err
	}))
	r.Method(ro, "getOwnPropertyDescriptor", 2, reflectKeyed("getOwnPropertyDescriptor", func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, _ []heap.Value) (heap.Value, error) {
		d, ok := o.GetOwnProperty(k)
		if !ok {
			return heap.Undefined, nil
		}
		return fromPropertyDescriptor(r, d), nil
	}))
	r.Method(ro, "has", 2, reflectKeyed("has", func(r *realm.Realm, o *heap.Object, k heap.PropertyKey, _ []heap.Value) (heap.Value, error) {
		return heap.BooleanValue(r.Heap.HasProperty(o, k)), nil
	}))
	r.Method(ro, "getPrototypeOf", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, "getPrototypeOf")
		if err != nil {
			return heap.Undefined, err
		}
		return protoValue(o), nil
	})
	r.Method(ro, "setPrototypeOf", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, "setPrototypeOf")
		if err != nil {
			return heap.Undefined, err
		}
		p := arg(args, 1)
		if !p.IsObject() && !p.IsNull() {
			return heap.Undefined, r.NewTypeError("Object prototype may only be an Object or null: %s", p.Inspect())
		}
		return heap.BooleanValue(o.SetPrototypeOf(p.AsObject())), nil
	})
	r.Method(ro, "isExtensible", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, "isExtensible")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(o.Extensible()), nil
	})
	r.Method(ro, "preventExtensions", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, "preventExtensions")
		if err != nil {
			return heap.Undefined, err
		}
		o.PreventExtensions()
		return heap.True, nil
	})
	r.Method(ro, "ownKeys", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := reflectTarget(r, args, "ownKeys")
		if err != nil {
			return heap.Undefined, err
		}
		keys := o.OwnKeys()
		out := make([]heap.Value, len(keys))
		for i, k := range keys {
			out[i] = k.Value()
		}
		return newArray(r, out), nil
	})
	return ctx.DefineGlobal("Reflect", heap.ObjectValue(ro))
}
