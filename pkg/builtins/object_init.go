package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string { return "Object" }

func (o *ObjectInitializer) Priority() int { return PriorityObject }

func (o *ObjectInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Intrinsic(realm.ObjectPrototype)

	ctor := r.NewNativeConstructor("Object", 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			v := arg(args, 0)
			if v.IsNullish() {
				return heap.ObjectValue(r.NewObject()), nil
			}
			o, err := r.ToObject(v)
			return heap.ObjectValue(o), err
		},
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			v := arg(args, 0)
			if newTarget != nil && newTarget != r.Intrinsic(realm.ObjectConstructor) {
				p, err := protoFromCtor(r, newTarget, realm.ObjectPrototype)
				if err != nil {
					return heap.Undefined, err
				}
				return heap.ObjectValue(r.Heap.NewObject(p)), nil
			}
			if v.IsNullish() {
				return heap.ObjectValue(r.NewObject()), nil
			}
			o, err := r.ToObject(v)
			return heap.ObjectValue(o), err
		}, proto)

	// Object.prototype
	r.Method(proto, "hasOwnProperty", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		k, err := r.Heap.ToPropertyKey(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		o, err := r.ToObject(this)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(o.HasOwnProperty(k)), nil
	})
	r.Method(proto, "isPrototypeOf", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		v := arg(args, 0).AsObject()
		if v == nil {
			return heap.False, nil
		}
		o, err := r.ToObject(this)
		if err != nil {
			return heap.Undefined, err
		}
		for p := v.Prototype(); p != nil; p = p.Prototype() {
			if p == o {
				return heap.True, nil
			}
		}
		return heap.False, nil
	})
	r.Method(proto, "propertyIsEnumerable", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		k, err := r.Heap.ToPropertyKey(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		o, err := r.ToObject(this)
		if err != nil {
			return heap.Undefined, err
		}
		d, ok := o.GetOwnProperty(k)
		return heap.BooleanValue(ok && d.Enumerable()), nil
	})
	toString := r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return objectToString(r, this)
	})
	r.Intrinsics.Set("ObjectProtoToString", toString)
	r.Method(proto, "toLocaleString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := r.Get(this, "toString")
		if err != nil {
			return heap.Undefined, err
		}
		return r.Call(f, this)
	})
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(this)
		return heap.ObjectValue(o), err
	})
	getProto := r.NewNativeFunction("get __proto__", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(this)
		if err != nil {
			return heap.Undefined, err
		}
		return protoValue(o), nil
	})
	setProto := r.NewNativeFunction("set __proto__", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		p := arg(args, 0)
		o := this.AsObject()
		if o == nil || (!p.IsObject() && !p.IsNull()) {
			return heap.Undefined, nil
		}
		if !o.SetPrototypeOf(p.AsObject()) {
			return heap.Undefined, r.NewTypeError("Cyclic __proto__ value")
		}
		return heap.Undefined, nil
	})
	proto.DefineAccessor(heap.StringKey("__proto__"), getProto, setProto)

	// Object statics
	r.Method(ctor, "keys", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return ownEnumerable(r, arg(args, 0), func(k heap.PropertyKey, _ heap.Value) heap.Value { return k.Value() })
	})
	r.Method(ctor, "values", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return ownEnumerable(r, arg(args, 0), func(_ heap.PropertyKey, v heap.Value) heap.Value { return v })
	})
	r.Method(ctor, "entries", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return ownEnumerable(r, arg(args, 0), func(k heap.PropertyKey, v heap.Value) heap.Value {
			return newArray(r, []heap.Value{k.Value(), v})
		})
	})
	r.Method(ctor, "assign", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		target, err := r.ToObject(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		for _, src := range args[1:] {
			if src.IsNullish() {
				continue
			}
			from, err := r.ToObject(src)
			if err != nil {
				return heap.Undefined, err
			}
			for _, k := range from.OwnKeys() {
				d, ok := from.GetOwnProperty(k)
				if !ok || !d.Enumerable() {
					continue
				}
				v, err := r.Heap.Get(from, k, src)
				if err != nil {
					return heap.Undefined, err
				}
				if err := r.Set(heap.ObjectValue(target), k, v, true); err != nil {
					return heap.Undefined, err
				}
			}
		}
		return heap.ObjectValue(target), nil
	})
	r.Method(ctor, "create", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		p := arg(args, 0)
		if !p.IsObject() && !p.IsNull() {
			return heap.Undefined, r.NewTypeError("Object prototype may only be an Object or null: %s", p.Inspect())
		}
		o := r.Heap.NewObject(p.AsObject())
		if props := arg(args, 1); !props.IsUndefined() {
			if err := defineProperties(r, o, props); err != nil {
				return heap.Undefined, err
			}
		}
		return heap.ObjectValue(o), nil
	})
	r.Method(ctor, "defineProperty", 3, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o := arg(args, 0).AsObject()
		if o == nil {
			return heap.Undefined, r.NewTypeError("Object.defineProperty called on non-object")
		}
		k, err := r.Heap.ToPropertyKey(arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		d, err := toPropertyDescriptor(r, arg(args, 2))
		if err != nil {
			return heap.Undefined, err
		}
		if !o.DefineOwnProperty(k, d) {
			return heap.Undefined, r.NewTypeError("Cannot redefine property: %s", k.String())
		}
		return arg(args, 0), nil
	})
	r.Method(ctor, "defineProperties", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o := arg(args, 0).AsObject()
		if o == nil {
			return heap.Undefined, r.NewTypeError("Object.defineProperties called on non-object")
		}
		return arg(args, 0), defineProperties(r, o, arg(args, 1))
	})
	r.Method(ctor, "getOwnPropertyNames", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return ownKeys(r, arg(args, 0), false)
	})
	r.Method(ctor, "getOwnPropertySymbols", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return ownKeys(r, arg(args, 0), true)
	})
	r.Method(ctor, "getOwnPropertyDescriptor", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		k, err := r.Heap.ToPropertyKey(arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		d, ok := o.GetOwnProperty(k)
		if !ok {
			return heap.Undefined, nil
		}
		return fromPropertyDescriptor(r, d), nil
	})
	r.Method(ctor, "getOwnPropertyDescriptors", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		out := r.NewObject()
		for _, k := range o.OwnKeys() {
			if d, ok := o.GetOwnProperty(k); ok {
				out.SetOwn(k, fromPropertyDescriptor(r, d))
			}
		}
		return heap.ObjectValue(out), nil
	})
	r.Method(ctor, "getPrototypeOf", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		o, err := r.ToObject(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return protoValue(o), nil
	})
	r.Method(ctor, "setPrototypeOf", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		v, p := arg(args, 0), arg(args, 1)
		if v.IsNullish() {
			return heap.Undefined, r.NewTypeError("Object.setPrototypeOf called on null or undefined")
		}
		if !p.IsObject() && !p.IsNull() {
			return heap.Undefined, r.NewTypeError("Object prototype may only be an Object or null: %s", p.Inspect())
		}
		if o := v.AsObject(); o != nil && !o.SetPrototypeOf(p.AsObject()) {
			return heap.Undefined, r.NewTypeError("Cyclic __proto__ value")
		}
		return v, nil
	})
	integrity := func(name string, apply func(*heap.Object)) {
		r.Method(ctor, name, 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			if o := arg(args, 0).AsObject(); o != nil {
				apply(o)
			}
			return arg(args, 0), nil
		})
	}
	integrity("freeze", (*heap.Object).Freeze)
	integrity("seal", (*heap.Object).Seal)
	integrity("preventExtensions", (*heap.Object).PreventExtensions)
	test := func(name string, fn func(*heap.Object) bool, primitive bool) {
		r.Method(ctor, name, 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			o := arg(args, 0).AsObject()
			if o == nil {
				return heap.BooleanValue(primitive), nil
			}
			return heap.BooleanValue(fn(o)), nil
		})
	}
	test("isFrozen", func(o *heap.Object) bool { return o.TestIntegrity(true) }, true)
	test("isSealed", func(o *heap.Object) bool { return o.TestIntegrity(false) }, true)
	test("isExtensible", (*heap.Object).Extensible, false)
	r.Method(ctor, "is", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return heap.BooleanValue(heap.SameValue(arg(args, 0), arg(args, 1))), nil
	})
	r.Method(ctor, "fromEntries", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		out := r.NewObject()
		err := iterate(r, arg(args, 0), func(entry heap.Value) (bool, error) {
			if !entry.IsObject() {
				return false, r.NewTypeError("Iterator value %s is not an entry object", entry.Inspect())
			}
			k, err := r.GetKey(entry, heap.IndexKey(0))
			if err != nil {
				return false, err
			}
			v, err := r.GetKey(entry, heap.IndexKey(1))
			if err != nil {
				return false, err
			}
			pk, err := r.Heap.ToPropertyKey(k)
			if err != nil {
				return false, err
			}
			out.SetOwn(pk, v)
			return true, nil
		})
		return heap.ObjectValue(out), err
	})
	r.Method(ctor, "groupBy", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, err := requireCallable(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		out := r.Heap.NewObject(nil)
		i := 0
		err = iterate(r, arg(args, 0), func(v heap.Value) (bool, error) {
			kv, err := r.Call(heap.ObjectValue(fn), heap.Undefined, v, heap.IntValue(i))
			if err != nil {
				return false, err
			}
			i++
			k, err := r.Heap.ToPropertyKey(kv)
			if err != nil {
				return false, err
			}
			group, ok := out.GetOwnProperty(k)
			if !ok {
				arr := r.NewArray(nil)
				out.SetOwn(k, heap.ObjectValue(arr))
				arr.Append(v)
				return true, nil
			}
			group.Value.AsObject().Append(v)
			return true, nil
		})
		return heap.ObjectValue(out), err
	})

	if err := ctx.Intrinsic(realm.ObjectConstructor, ctor); err != nil {
		return err
	}
	return ctx.DefineGlobal("Object", heap.ObjectValue(ctor))
}

func protoValue(o *heap.Object) heap.Value {
	if p := o.Prototype(); p != nil {
		return heap.ObjectValue(p)
	}
	return heap.Null
}

// objectToString implements Object.prototype.toString.
func objectToString(r *realm.Realm, this heap.Value) (heap.Value, error) {
	switch {
	case this.IsUndefined():
		return str("[object Undefined]"), nil
	case this.IsNull():
		return str("[object Null]"), nil
	}
	o, err := r.ToObject(this)
	if err != nil {
		return heap.Undefined, err
	}
	tag := "Object"
	switch {
	case o.IsArray():
		tag = "Array"
	case o.IsCallable():
		tag = "Function"
	default:
		switch c := o.Class(); c {
		case "Error", "Boolean", "Number", "String", "Date", "RegExp", "Arguments":
			tag = c
		}
	}
	t, err := r.Heap.Get(o, heap.SymbolKey(heap.SymToStringTag), this)
	if err != nil {
		return heap.Undefined, err
	}
	if t.IsString() {
		tag = t.AsString()
	}
	return str("[object " + tag + "]"), nil
}

func ownEnumerable(r *realm.Realm, v heap.Value, project func(heap.PropertyKey, heap.Value) heap.Value) (heap.Value, error) {
	o, err := r.ToObject(v)
	if err != nil {
		return heap.Undefined, err
	}
	var out []heap.Value
	for _, k := range o.OwnKeys() {
		if k.IsSymbol() {
			continue
		}
		d, ok := o.GetOwnProperty(k)
		if !ok || !d.Enumerable() {
			continue
		}
		val, err := r.Heap.Get(o, k, heap.ObjectValue(o))
		if err != nil {
			return heap.Undefined, err
		}
		out = append(out, project(k, val))
	}
	return newArray(r, out), nil
}

func ownKeys(r *realm.Realm, v heap.Value, symbols bool) (heap.Value, error) {
	o, err := r.ToObject(v)
	if err != nil {
		return heap.Undefined, err
	}
	var out []heap.Value
	for _, k := range o.OwnKeys() {
		if k.IsSymbol() == symbols {
			out = append(out, k.Value())
		}
	}
	return newArray(r, out), nil
}

func defineProperties(r *realm.Realm, o *heap.Object, props heap.Value) error {
	src, err := r.ToObject(props)
	if err != nil {
		return err
	}
	for _, k := range src.OwnKeys() {
		d, ok := src.GetOwnProperty(k)
		if !ok || !d.Enumerable() {
			continue
		}
		dv, err := r.Heap.Get(src, k, props)
		if err != nil {
			return err
		}
		desc, err := toPropertyDescriptor(r, dv)
		if err != nil {
			return err
		}
		if !o.DefineOwnProperty(k, desc) {
			return r.NewTypeError("Cannot redefine property: %s", k.String())
		}
	}
	return nil
}

// toPropertyDescriptor converts a descriptor object into a partial
// heap.Descriptor.
func toPropertyDescriptor(r *realm.Realm, v heap.Value) (heap.Descriptor, error) {
	o := v.AsObject()
	if o == nil {
		return heap.Descriptor{}, r.NewTypeError("Property description must be an object: %s", v.Inspect())
	}
	var d heap.Descriptor
	field := func(name string) (heap.Value, bool, error) {
		k := heap.StringKey(name)
		if !r.Heap.HasProperty(o, k) {
			return heap.Undefined, false, nil
		}
		fv, err := r.Heap.Get(o, k, v)
		return fv, true, err
	}
	flag := func(name string, bit heap.PropFlags, has heap.DescField) error {
		fv, ok, err := field(name)
		if err != nil || !ok {
			return err
		}
		d.Has |= has
		if heap.ToBoolean(fv) {
			d.Flags |= bit
		}
		return nil
	}
	if err := flag("enumerable", heap.Enumerable, heap.HasEnumerable); err != nil {
		return d, err
	}
	if err := flag("configurable", heap.Configurable, heap.HasConfigurable); err != nil {
		return d, err
	}
	if err := flag("writable", heap.Writable, heap.HasWritable); err != nil {
		return d, err
	}
	if fv, ok, err := field("value"); err != nil {
		return d, err
	} else if ok {
		d.Value = fv
		d.Has |= heap.HasValue
	}
	accessor := func(name string, has heap.DescField) (*heap.Object, error) {
		fv, ok, err := field(name)
		if err != nil || !ok {
			return nil, err
		}
		d.Has |= has
		if fv.IsUndefined() {
			return nil, nil
		}
		if !fv.IsCallable() {
			return nil, r.NewTypeError("%s must be a function: %s", capitalize(name)+"ter", fv.Inspect())
		}
		return fv.AsObject(), nil
	}
	var err error
	if d.Getter, err = accessor("get", heap.HasGet); err != nil {
		return d, err
	}
	if d.Setter, err = accessor("set", heap.HasSet); err != nil {
		return d, err
	}
	if d.IsAccessor() && d.IsData() {
		return d, r.NewTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return d, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func fromPropertyDescriptor(r *realm.Realm, d heap.Descriptor) heap.Value {
	o := r.NewObject()
	if d.IsAccessor() {
		get, set := heap.Undefined, heap.Undefined
		if d.Getter != nil {
			get = heap.ObjectValue(d.Getter)
		}
		if d.Setter != nil {
			set = heap.ObjectValue(d.Setter)
		}
		o.Put("get", get)
		o.Put("set", set)
	} else {
		o.Put("value", d.Value)
		o.Put("writable", heap.BooleanValue(d.Writable()))
	}
	o.Put("enumerable", heap.BooleanValue(d.Enumerable()))
	o.Put("configurable", heap.BooleanValue(d.Configurable()))
	return heap.ObjectValue(o)
}
