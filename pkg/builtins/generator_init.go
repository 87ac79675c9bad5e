package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// GeneratorInitializer installs the prototypes shared by generator,
// async generator and async functions.
type GeneratorInitializer struct{}

func (g *GeneratorInitializer) Name() string { return "Generator" }

func (g *GeneratorInitializer) Priority() int { return PriorityGenerator }

func (g *GeneratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	fnProto := r.Intrinsic(realm.FunctionPrototype)

	genProto := r.Heap.NewObject(r.Intrinsic(realm.IteratorPrototype))
	for _, m := range []struct {
		name string
		mode realm.ResumeMode
	}{{"next", realm.ResumeNext}, {"return", realm.ResumeReturn}, {"throw", realm.ResumeThrow}} {
		mode := m.mode
		r.Method(genProto, m.name, 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
			co := realm.CoroutineOf(this)
			if co == nil || co.IsAsync() {
				return heap.Undefined, r.NewTypeError("%s method called on incompatible receiver %s", mode, this.Inspect())
			}
			return co.Resume(mode, arg(args, 0))
		})
	}
	genProto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Generator"), heap.Configurable))
	if err := ctx.Intrinsic(realm.GeneratorPrototype, genProto); err != nil {
		return err
	}

	asyncGenProto := r.Heap.NewObject(r.Intrinsic("AsyncIteratorPrototype"))
	for _, m := range []struct {
		name string
		mode realm.ResumeMode
	}{{"next", realm.ResumeNext}, {"return", realm.ResumeReturn}, {"throw", realm.ResumeThrow}} {
		mode := m.mode
		r.Method(asyncGenProto, m.name, 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
			co := realm.CoroutineOf(this)
			if co == nil || !co.IsAsync() {
				p := r.NewPromise(nil)
				r.RejectPromise(p, r.NewTypeError("%s method called on incompatible receiver %s", mode, this.Inspect()).Value)
				return heap.ObjectValue(p), nil
			}
			return co.Resume(mode, arg(args, 0))
		})
	}
	asyncGenProto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("AsyncGenerator"), heap.Configurable))
	if err := ctx.Intrinsic(realm.AsyncGeneratorPrototype, asyncGenProto); err != nil {
		return err
	}

	// The function prototypes sit between generator functions and
	// Function.prototype; each links to its instance prototype.
	kinds := []struct {
		ctorName, kind, intrinsic, tag string
		instances                      *heap.Object
	}{
		{"GeneratorFunction", "generator", "GeneratorFunctionPrototype", "GeneratorFunction", genProto},
		{"AsyncGeneratorFunction", "asyncGenerator", "AsyncGeneratorFunctionPrototype", "AsyncGeneratorFunction", asyncGenProto},
		{"AsyncFunction", "async", realm.AsyncFunctionPrototype, "AsyncFunction", nil},
	}
	for _, k := range kinds {
		proto := r.Heap.NewObject(fnProto)
		if k.instances != nil {
			proto.DefineOwnProperty(heap.StringKey("prototype"), heap.DataDesc(heap.ObjectValue(k.instances), heap.Configurable))
			k.instances.DefineOwnProperty(heap.StringKey("constructor"), heap.DataDesc(heap.ObjectValue(proto), heap.Configurable))
		}
		proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str(k.tag), heap.Configurable))
		ctor := dynamicFunctionCtor(r, k.ctorName, k.kind, proto)
		ctor.SetPrototypeOf(r.Intrinsic("Function"))
		if err := ctx.Intrinsic(k.intrinsic, proto); err != nil {
			return err
		}
		if err := ctx.Intrinsic(k.ctorName, ctor); err != nil {
			return err
		}
	}
	return nil
}
