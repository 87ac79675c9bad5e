package builtins

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tliron/commonlog"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

var log = commonlog.GetLogger("cinder.builtins")

// BuiltinInitializer is implemented by each builtin module.
type BuiltinInitializer interface {
	// Name returns the module name (e.g., "Array", "String", "Math")
	Name() string

	// Priority returns initialization order (lower = earlier)
	Priority() int

	// InitRuntime creates the runtime objects in the realm
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything needed for runtime initialization.
type RuntimeContext struct {
	Realm *realm.Realm

	// Stdout and Stderr receive console output.
	Stdout io.Writer
	Stderr io.Writer
}

// DefineGlobal installs a non-enumerable global binding.
func (ctx *RuntimeContext) DefineGlobal(name string, v heap.Value) error {
	g := ctx.Realm.GlobalObject
	if !g.DefineOwnProperty(heap.StringKey(name), heap.DataDesc(v, heap.HiddenFlags)) {
		return fmt.Errorf("cannot define global %q", name)
	}
	return nil
}

// Intrinsic registers o under name in the realm's intrinsic table.
func (ctx *RuntimeContext) Intrinsic(name string, o *heap.Object) error {
	return ctx.Realm.Intrinsics.Set(name, o)
}

// Priority constants for initialization order
const (
	PriorityObject    = 0  // Object must be first (base prototype)
	PriorityFunction  = 1  // Function second (inherits from Object)
	PrioritySymbol    = 2  // Symbol registry and well-known symbols
	PriorityError     = 3  // Error family, needed by everything that throws
	PriorityIterator  = 4  // Iterator prototypes (needed for iterables)
	PriorityArray     = 5  // Array (inherits from Object, implements Iterable)
	PriorityGenerator = 6  // Generator and async generator objects
	PriorityPromise   = 7  // Promise, async function prototype
	PriorityString    = 10 // String primitives
	PriorityNumber    = 11 // Number primitives
	PriorityBoolean   = 12 // Boolean primitives
	PriorityBigInt    = 13 // BigInt primitives
	PriorityRegExp    = 14 // RegExp constructor
	PriorityMap       = 20 // Map, Set, WeakRef, WeakMap, WeakSet
	PriorityReflect   = 21 // Reflect namespace
	PriorityMath      = 100
	PriorityJSON      = 101
	PriorityConsole   = 102
	PriorityIntl      = 103
	PriorityTemporal  = 104
	PriorityGlobals   = 200 // globalThis functions, last so they see everything
)

// GetStandardInitializers returns all built-in initializers sorted by priority.
func GetStandardInitializers() []BuiltinInitializer {
	initializers := []BuiltinInitializer{
		&ObjectInitializer{},
		&FunctionInitializer{},
		&SymbolInitializer{},
		&ErrorInitializer{},
		&IteratorInitializer{},
		&ArrayInitializer{},
		&GeneratorInitializer{},
		&PromiseInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&BooleanInitializer{},
		&BigIntInitializer{},
		&RegExpInitializer{},
		&MapInitializer{},
		&SetInitializer{},
		&WeakRefInitializer{},
		&WeakMapInitializer{},
		&WeakSetInitializer{},
		&ReflectInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&ConsoleInitializer{},
		&IntlInitializer{},
		&TemporalInitializer{},
		&GlobalsInitializer{},
	}
	sort.SliceStable(initializers, func(i, j int) bool {
		return initializers[i].Priority() < initializers[j].Priority()
	})
	return initializers
}

// Options configure Install.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Extra initializers run after the standard ones, in priority order.
	Extra []BuiltinInitializer
}

// Install runs every standard initializer against r and freezes the
// intrinsic table.
func Install(r *realm.Realm, opts Options) error {
	ctx := &RuntimeContext{Realm: r, Stdout: opts.Stdout, Stderr: opts.Stderr}
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}
	if ctx.Stderr == nil {
		ctx.Stderr = os.Stderr
	}
	inits := GetStandardInitializers()
	if len(opts.Extra) > 0 {
		inits = append(inits, opts.Extra...)
		sort.SliceStable(inits, func(i, j int) bool { return inits[i].Priority() < inits[j].Priority() })
	}
	for _, init := range inits {
		if err := init.InitRuntime(ctx); err != nil {
			return fmt.Errorf("builtins: initializing %s: %w", init.Name(), err)
		}
		log.Debugf("initialized %s", init.Name())
	}
	r.Intrinsics.Freeze()
	return nil
}
