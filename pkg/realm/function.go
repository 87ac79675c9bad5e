package realm

import (
	"cinder/pkg/heap"
)

// NativeFunc is the calling convention of builtins.
type NativeFunc func(args []heap.Value, this heap.Value, r *Realm) (heap.Value, error)

// NativeCtor runs a builtin invoked with new.
type NativeCtor func(args []heap.Value, newTarget *heap.Object, r *Realm) (heap.Value, error)

// NativeFunction is the internal slot of builtin function objects.
type NativeFunction struct {
	Name  string
	Arity int
	Fn    NativeFunc
	Ctor  NativeCtor
}

func (*NativeFunction) EachRef(func(heap.Node)) {}
func (f *NativeFunction) FunctionName() string  { return f.Name }
func (f *NativeFunction) IsConstructor() bool   { return f.Ctor != nil }

// BoundFunction is the internal slot of Function.prototype.bind results.
type BoundFunction struct {
	h      *heap.Heap
	Target *heap.Object
	This   heap.Value
	Args   []heap.Value
}

func (b *BoundFunction) EachRef(visit func(heap.Node)) {
	if b.Target != nil {
		visit(b.Target)
	}
	if n := b.This.Node(); n != nil {
		visit(n)
	}
	for _, a := range b.Args {
		if n := a.Node(); n != nil {
			visit(n)
		}
	}
}

func (b *BoundFunction) FunctionName() string {
	if b.Target == nil {
		return "bound"
	}
	if c := b.Target.Callable(); c != nil {
		return "bound " + c.FunctionName()
	}
	return "bound"
}

func (b *BoundFunction) IsConstructor() bool {
	return b.Target != nil && b.Target.IsConstructor()
}

// NewNativeFunction allocates a builtin function object with name and
// length properties.
func (r *Realm) NewNativeFunction(name string, arity int, fn NativeFunc) *heap.Object {
	return r.newNative(&NativeFunction{Name: name, Arity: arity, Fn: fn})
}

// NewNativeConstructor allocates a builtin constructor. call handles plain
// invocation; it may be nil, in which case calling without new throws.
func (r *Realm) NewNativeConstructor(name string, arity int, call NativeFunc, ctor NativeCtor, proto *heap.Object) *heap.Object {
	if call == nil {
		call = func(args []heap.Value, this heap.Value, r *Realm) (heap.Value, error) {
			return heap.Undefined, r.NewTypeError("Class constructor %s cannot be invoked without 'new'", name)
		}
	}
	f := r.newNative(&NativeFunction{Name: name, Arity: arity, Fn: call, Ctor: ctor})
	if proto != nil {
		f.DefineOwnProperty(heap.StringKey("prototype"), heap.DataDesc(heap.ObjectValue(proto), 0))
		proto.DefineHidden("constructor", heap.ObjectValue(f))
	}
	return f
}

func (r *Realm) newNative(nf *NativeFunction) *heap.Object {
	f := r.Heap.NewObjectOf("Function", r.Intrinsic(FunctionPrototype), nf)
	DefineFunctionMeta(f, nf.Name, nf.Arity)
	return f
}

// DefineFunctionMeta installs the length and name properties.
func DefineFunctionMeta(f *heap.Object, name string, arity int) {
	f.DefineOwnProperty(heap.StringKey("length"), heap.DataDesc(heap.IntValue(arity), heap.Configurable))
	f.DefineOwnProperty(heap.StringKey("name"), heap.DataDesc(heap.NewString(name), heap.Configurable))
}

// NewBoundFunction implements Function.prototype.bind.
func (r *Realm) NewBoundFunction(target *heap.Object, this heap.Value, args []heap.Value) *heap.Object {
	h := r.Heap
	b := &BoundFunction{h: h, Target: target, This: this, Args: append([]heap.Value(nil), args...)}
	h.RetainNode(target)
	h.Retain(this)
	for _, a := range b.Args {
		h.Retain(a)
	}
	f := h.NewObjectOf("Function", target.Prototype(), b)
	length := 0
	if l, ok := target.FindData("length"); ok && l.IsNumber() {
		length = int(l.AsNumber()) - len(args)
		if length < 0 {
			length = 0
		}
	}
	DefineFunctionMeta(f, b.FunctionName(), length)
	return f
}

// Method defines a non-enumerable builtin method on o.
func (r *Realm) Method(o *heap.Object, name string, arity int, fn NativeFunc) *heap.Object {
	f := r.NewNativeFunction(name, arity, fn)
	o.DefineHidden(name, heap.ObjectValue(f))
	return f
}

// SymbolMethod defines a builtin method keyed by a symbol.
func (r *Realm) SymbolMethod(o *heap.Object, sym *heap.Symbol, name string, arity int, fn NativeFunc) *heap.Object {
	f := r.NewNativeFunction(name, arity, fn)
	o.DefineHiddenKey(heap.SymbolKey(sym), heap.ObjectValue(f))
	return f
}

// Getter defines a builtin accessor property with only a getter.
func (r *Realm) Getter(o *heap.Object, k heap.PropertyKey, fn NativeFunc) {
	name := "get " + k.String()
	g := r.NewNativeFunction(name, 0, fn)
	o.DefineOwnProperty(k, heap.AccessorDesc(g, nil, heap.Configurable))
}

// Arg returns args[i] or undefined.
func Arg(args []heap.Value, i int) heap.Value {
	if i < len(args) {
		return args[i]
	}
	return heap.Undefined
}
