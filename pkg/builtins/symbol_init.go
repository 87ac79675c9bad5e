package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string { return "Symbol" }

func (s *SymbolInitializer) Priority() int { return PrioritySymbol }

var wellKnownSymbols = map[string]*heap.Symbol{
	"iterator":      heap.SymIterator,
	"asyncIterator": heap.SymAsyncIterator,
	"hasInstance":   heap.SymHasInstance,
	"toPrimitive":   heap.SymToPrimitive,
	"toStringTag":   heap.SymToStringTag,
	"species":       heap.SymSpecies,
}

func thisSymbol(r *realm.Realm, this heap.Value) (*heap.Symbol, error) {
	if s := this.AsSymbol(); s != nil {
		return s, nil
	}
	if o := this.AsObject(); o != nil {
		if v, ok := o.PrimitiveValue(); ok && v.IsSymbol() {
			return v.AsSymbol(), nil
		}
	}
	return nil, r.NewTypeError("%s is not a symbol", this.Inspect())
}

func (s *SymbolInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.SymbolPrototype, proto); err != nil {
		return err
	}

	ctor := r.NewNativeConstructor("Symbol", 0,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			d := arg(args, 0)
			if d.IsUndefined() {
				return heap.SymbolValue(&heap.Symbol{}), nil
			}
			desc, err := toStr(r, d)
			if err != nil {
				return heap.Undefined, err
			}
			return heap.SymbolValue(heap.NewSymbolIdentity(desc)), nil
		}, nil, proto)
	for name, sym := range wellKnownSymbols {
		ctor.DefineReadOnly(name, heap.SymbolValue(sym))
	}
	r.Method(ctor, "for", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		key, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.SymbolValue(r.SymbolFor(key)), nil
	})
	r.Method(ctor, "keyFor", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		sym := arg(args, 0).AsSymbol()
		if sym == nil {
			return heap.Undefined, r.NewTypeError("%s is not a symbol", arg(args, 0).Inspect())
		}
		if sym.Registered {
			return str(sym.Description), nil
		}
		return heap.Undefined, nil
	})

	r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		sym, err := thisSymbol(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return str(sym.String()), nil
	})
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		sym, err := thisSymbol(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.SymbolValue(sym), nil
	})
	r.Getter(proto, heap.StringKey("description"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		sym, err := thisSymbol(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		if !sym.HasDescription {
			return heap.Undefined, nil
		}
		return str(sym.Description), nil
	})
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Symbol"), heap.Configurable))
	r.SymbolMethod(proto, heap.SymToPrimitive, "[Symbol.toPrimitive]", 1, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		sym, err := thisSymbol(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.SymbolValue(sym), nil
	})

	return ctx.DefineGlobal("Symbol", heap.ObjectValue(ctor))
}
