// Package realm holds the per-engine global state: the heap, the intrinsic
// table, the global object and scope, module records, the microtask queue
// and the hooks the VM and host install.
package realm

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"cinder/pkg/heap"
	"cinder/pkg/scope"
)

var log = commonlog.GetLogger("cinder.realm")

// Intrinsic names used across packages.
const (
	ObjectPrototype         = "ObjectPrototype"
	FunctionPrototype       = "FunctionPrototype"
	ArrayPrototype          = "ArrayPrototype"
	StringPrototype         = "StringPrototype"
	NumberPrototype         = "NumberPrototype"
	BooleanPrototype        = "BooleanPrototype"
	SymbolPrototype         = "SymbolPrototype"
	BigIntPrototype         = "BigIntPrototype"
	ErrorPrototype          = "ErrorPrototype"
	IteratorPrototype       = "IteratorPrototype"
	ArrayIteratorPrototype  = "ArrayIteratorPrototype"
	GeneratorPrototype      = "GeneratorPrototype"
	AsyncGeneratorPrototype = "AsyncGeneratorPrototype"
	AsyncFunctionPrototype  = "AsyncFunctionPrototype"
	PromisePrototype        = "PromisePrototype"
	PromiseConstructor      = "Promise"
	RegExpPrototype         = "RegExpPrototype"
	MapPrototype            = "MapPrototype"
	SetPrototype            = "SetPrototype"
	WeakRefPrototype        = "WeakRefPrototype"
	WeakMapPrototype        = "WeakMapPrototype"
	WeakSetPrototype        = "WeakSetPrototype"
	ArrayConstructor        = "Array"
	ObjectConstructor       = "Object"
)

// Intrinsics is the named table of builtin objects. It is writable while
// builtins initialise and frozen afterwards.
type Intrinsics struct {
	h      *heap.Heap
	table  map[string]*heap.Object
	frozen bool
}

// Get returns the named intrinsic or nil.
func (in *Intrinsics) Get(name string) *heap.Object { return in.table[name] }

// Set registers an intrinsic; the table holds a strong reference.
func (in *Intrinsics) Set(name string, o *heap.Object) error {
	if in.frozen {
		return fmt.Errorf("intrinsic table is frozen, cannot set %q", name)
	}
	if old := in.table[name]; old != nil {
		in.h.ReleaseNode(old)
	}
	in.h.RetainNode(o)
	in.table[name] = o
	return nil
}

// Freeze forbids further registration.
func (in *Intrinsics) Freeze() { in.frozen = true }

func (in *Intrinsics) Frozen() bool { return in.frozen }

// Names lists registered intrinsics in sorted order.
func (in *Intrinsics) Names() []string {
	names := make([]string, 0, len(in.table))
	for n := range in.table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Hooks connect the realm to the VM and host. The VM installs Construct,
// Eval, DynamicFunction and StackTrace; the host installs ResolveModule and
// EvaluateModule.
type Hooks struct {
	Construct       func(fn *heap.Object, args []heap.Value, newTarget *heap.Object) (heap.Value, error)
	Eval            func(source string, strict bool) (heap.Value, error)
	DynamicFunction func(kind string, params []string, body string) (heap.Value, error)
	StackTrace      func() []string
	ResolveModule   func(specifier, referrer string) (path string, source string, err error)
	EvaluateModule  func(rec *ModuleRecord, source string) error
	Collect         func() heap.CollectStats
}

// Options configure a realm.
type Options struct {
	Heap heap.Options
}

// Realm is one isolated global environment.
type Realm struct {
	ID           string
	Heap         *heap.Heap
	Intrinsics   *Intrinsics
	GlobalObject *heap.Object
	GlobalScope  *scope.Scope
	Hooks        Hooks

	modules    map[string]*ModuleRecord
	microtasks []microtask
	symbols    map[string]*heap.Symbol
	rejections []*heap.Object
}

// New creates a realm with the core prototypes, the global object and the
// global scope. Builtins populate the rest of the intrinsic table.
func New(opts Options) *Realm {
	h := heap.New(opts.Heap)
	r := &Realm{
		ID:         uuid.NewString(),
		Heap:       h,
		Intrinsics: &Intrinsics{h: h, table: map[string]*heap.Object{}},
		modules:    map[string]*ModuleRecord{},
		symbols:    map[string]*heap.Symbol{},
	}
	objProto := h.NewObject(nil)
	r.Intrinsics.Set(ObjectPrototype, objProto)
	fnProto := h.NewObjectOf("Function", objProto, &NativeFunction{Name: "", Fn: func([]heap.Value, heap.Value, *Realm) (heap.Value, error) {
		return heap.Undefined, nil
	}})
	r.Intrinsics.Set(FunctionPrototype, fnProto)

	r.GlobalObject = h.NewObjectOf("global", objProto, nil)
	h.RetainNode(r.GlobalObject)
	r.GlobalScope = scope.NewGlobal(h, r.GlobalObject)
	h.RetainNode(r.GlobalScope)
	r.GlobalObject.DefineHidden("globalThis", heap.ObjectValue(r.GlobalObject))
	log.Debugf("realm %s created", r.ID)
	return r
}

// Intrinsic is shorthand for r.Intrinsics.Get.
func (r *Realm) Intrinsic(name string) *heap.Object { return r.Intrinsics.Get(name) }

// Call invokes fn through the VM.
func (r *Realm) Call(fn heap.Value, this heap.Value, args ...heap.Value) (heap.Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return heap.Undefined, r.NewTypeError("%s is not a function", fn.Inspect())
	}
	return r.Heap.Call(o, this, args...)
}

// Construct invokes fn as a constructor through the VM.
func (r *Realm) Construct(fn heap.Value, args []heap.Value, newTarget *heap.Object) (heap.Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsConstructor() {
		return heap.Undefined, r.NewTypeError("%s is not a constructor", fn.Inspect())
	}
	if newTarget == nil {
		newTarget = o
	}
	if r.Hooks.Construct == nil {
		return heap.Undefined, heap.ErrNoInvoker
	}
	return r.Hooks.Construct(o, args, newTarget)
}

// Get reads a property of any value, boxing primitives through their
// wrapper prototype.
func (r *Realm) Get(v heap.Value, key string) (heap.Value, error) {
	return r.GetKey(v, heap.StringKey(key))
}

func (r *Realm) GetKey(v heap.Value, k heap.PropertyKey) (heap.Value, error) {
	if v.IsNullish() {
		return heap.Undefined, r.NewTypeError("Cannot read properties of %s (reading '%s')", v.Inspect(), k.String())
	}
	return r.Heap.GetV(v, k, r.ProtoOf(v))
}

// Set writes a property; strict writes that are rejected throw.
func (r *Realm) Set(target heap.Value, k heap.PropertyKey, v heap.Value, strict bool) error {
	o := target.AsObject()
	if o == nil {
		if target.IsNullish() {
			return r.NewTypeError("Cannot set properties of %s (setting '%s')", target.Inspect(), k.String())
		}
		proto := r.ProtoOf(target)
		ok, err := r.Heap.Set(proto, k, v, target)
		if err != nil {
			return err
		}
		if !ok && strict {
			return r.NewTypeError("Cannot create property '%s' on %s '%s'", k.String(), target.TypeName(), target.Inspect())
		}
		return nil
	}
	ok, err := r.Heap.Set(o, k, v, target)
	if err != nil {
		return err
	}
	if !ok && strict {
		return r.NewTypeError("Cannot assign to read only property '%s' of object", k.String())
	}
	return nil
}

// ProtoOf returns the wrapper prototype for primitives and the prototype of
// objects.
func (r *Realm) ProtoOf(v heap.Value) *heap.Object {
	switch v.Kind() {
	case heap.KindString:
		return r.Intrinsic(StringPrototype)
	case heap.KindNumber:
		return r.Intrinsic(NumberPrototype)
	case heap.KindBoolean:
		return r.Intrinsic(BooleanPrototype)
	case heap.KindSymbol:
		return r.Intrinsic(SymbolPrototype)
	case heap.KindBigInt:
		return r.Intrinsic(BigIntPrototype)
	case heap.KindObject:
		return v.AsObject().Prototype()
	}
	return nil
}

// ToObject boxes primitives; undefined and null are a TypeError.
func (r *Realm) ToObject(v heap.Value) (*heap.Object, error) {
	switch v.Kind() {
	case heap.KindObject:
		return v.AsObject(), nil
	case heap.KindUndefined, heap.KindNull:
		return nil, r.NewTypeError("Cannot convert undefined or null to object")
	}
	class := map[heap.Kind]string{
		heap.KindString:  "String",
		heap.KindNumber:  "Number",
		heap.KindBoolean: "Boolean",
		heap.KindSymbol:  "Symbol",
		heap.KindBigInt:  "BigInt",
	}[v.Kind()]
	return r.Heap.NewObjectOf(class, r.ProtoOf(v), &heap.PrimitiveBox{Value: v}), nil
}

// NewObject allocates an ordinary object inheriting from Object.prototype.
func (r *Realm) NewObject() *heap.Object {
	return r.Heap.NewObject(r.Intrinsic(ObjectPrototype))
}

// NewArray allocates an array inheriting from Array.prototype.
func (r *Realm) NewArray(elems []heap.Value) *heap.Object {
	return r.Heap.NewArray(r.Intrinsic(ArrayPrototype), elems)
}

// SymbolFor implements the global symbol registry.
func (r *Realm) SymbolFor(key string) *heap.Symbol {
	if s, ok := r.symbols[key]; ok {
		return s
	}
	s := &heap.Symbol{Description: key, HasDescription: true, Registered: true}
	r.symbols[key] = s
	return s
}

// SetGlobal defines a non-enumerable global binding.
func (r *Realm) SetGlobal(name string, v heap.Value) {
	r.GlobalObject.DefineHidden(name, v)
}

// Collect runs a heap collection through the VM so register roots are
// included.
func (r *Realm) Collect() heap.CollectStats {
	if r.Hooks.Collect != nil {
		return r.Hooks.Collect()
	}
	return r.Heap.Collect(nil)
}
