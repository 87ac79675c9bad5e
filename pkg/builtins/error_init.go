package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type ErrorInitializer struct{}

func (e *ErrorInitializer) Name() string { return "Error" }

func (e *ErrorInitializer) Priority() int { return PriorityError }

func (e *ErrorInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	base := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.ErrorPrototype, base); err != nil {
		return err
	}
	baseCtor := errorConstructor(r, "Error", base)
	base.DefineHidden("name", str("Error"))
	base.DefineHidden("message", heap.EmptyString)
	r.Method(base, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if !this.IsObject() {
			return heap.Undefined, r.NewTypeError("Error.prototype.toString called on non-object")
		}
		name, err := r.Get(this, "name")
		if err != nil {
			return heap.Undefined, err
		}
		msg, err := r.Get(this, "message")
		if err != nil {
			return heap.Undefined, err
		}
		n, m := "Error", ""
		if !name.IsUndefined() {
			if n, err = toStr(r, name); err != nil {
				return heap.Undefined, err
			}
		}
		if !msg.IsUndefined() {
			if m, err = toStr(r, msg); err != nil {
				return heap.Undefined, err
			}
		}
		switch {
		case n == "":
			return str(m), nil
		case m == "":
			return str(n), nil
		}
		return str(n + ": " + m), nil
	})
	r.Method(baseCtor, "captureStackTrace", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o := arg(args, 0).AsObject()
		if o == nil {
			return heap.Undefined, r.NewTypeError("Invalid argument")
		}
		name, msg := realm.ErrorParts(heap.ObjectValue(o))
		if name == "" {
			name = "Error"
		}
		r.CaptureStack(o, name, msg)
		return heap.Undefined, nil
	})
	if err := ctx.DefineGlobal("Error", heap.ObjectValue(baseCtor)); err != nil {
		return err
	}

	for _, name := range realm.ErrorNames {
		if name == "Error" {
			continue
		}
		proto := r.Heap.NewObject(base)
		if err := ctx.Intrinsic(name+"Prototype", proto); err != nil {
			return err
		}
		var ctor *heap.Object
		if name == "AggregateError" {
			ctor = aggregateErrorConstructor(r, proto)
		} else {
			ctor = errorConstructor(r, name, proto)
		}
		ctor.SetPrototypeOf(baseCtor)
		proto.DefineHidden("name", str(name))
		proto.DefineHidden("message", heap.EmptyString)
		if err := ctx.DefineGlobal(name, heap.ObjectValue(ctor)); err != nil {
			return err
		}
	}
	return nil
}

func errorConstructor(r *realm.Realm, name string, proto *heap.Object) *heap.Object {
	build := func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
		o, err := newErrorObject(r, name, newTarget, arg(args, 0), arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(o), nil
	}
	return r.NewNativeConstructor(name, 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) { return build(args, nil, r) },
		build, proto)
}

func aggregateErrorConstructor(r *realm.Realm, proto *heap.Object) *heap.Object {
	build := func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
		o, err := newErrorObject(r, "AggregateError", newTarget, arg(args, 1), arg(args, 2))
		if err != nil {
			return heap.Undefined, err
		}
		errs, err := collect(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		o.DefineHidden("errors", newArray(r, errs))
		return heap.ObjectValue(o), nil
	}
	return r.NewNativeConstructor("AggregateError", 2,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) { return build(args, nil, r) },
		build, proto)
}

// newErrorObject allocates an error of the named kind, honoring subclass
// prototypes and the cause option.
func newErrorObject(r *realm.Realm, name string, newTarget *heap.Object, message, options heap.Value) (*heap.Object, error) {
	proto, err := protoFromCtor(r, newTarget, name+"Prototype")
	if err != nil {
		return nil, err
	}
	if proto == nil {
		proto = r.Intrinsic(realm.ErrorPrototype)
	}
	o := r.Heap.NewObjectOf("Error", proto, nil)
	msg := ""
	if !message.IsUndefined() {
		if msg, err = toStr(r, message); err != nil {
			return nil, err
		}
		o.DefineHidden("message", str(msg))
	}
	if opts := options.AsObject(); opts != nil && r.Heap.HasProperty(opts, heap.StringKey("cause")) {
		cause, err := r.Heap.Get(opts, heap.StringKey("cause"), options)
		if err != nil {
			return nil, err
		}
		o.DefineHidden("cause", cause)
	}
	displayName := name
	if n, ok := proto.FindData("name"); ok && n.IsString() {
		displayName = n.AsString()
	}
	r.CaptureStack(o, displayName, msg)
	return o, nil
}
