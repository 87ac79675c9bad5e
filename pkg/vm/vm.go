// Package vm executes compiled modules: a register and accumulator machine
// with per-frame scope chains, try regions, generators and async frames.
package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"cinder/pkg/bytecode"
	"cinder/pkg/errors"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
)

var log = commonlog.GetLogger("cinder.vm")

// DefaultMaxCallDepth bounds nested guest calls.
const DefaultMaxCallDepth = 10000

// maxStackFrames caps captured stack traces.
const maxStackFrames = 64

// Config tunes a VM.
type Config struct {
	// MaxCallDepth is the frame limit; exceeding it throws a RangeError.
	MaxCallDepth int
	// AutoCollect runs the collector at function entry when the heap asks
	// for it.
	AutoCollect bool
	// Trace logs every executed instruction at debug level.
	Trace bool
}

func DefaultConfig() Config {
	return Config{MaxCallDepth: DefaultMaxCallDepth, AutoCollect: true}
}

// InterpretResult represents the outcome of an interpretation.
type InterpretResult uint8

const (
	InterpretOK InterpretResult = iota
	InterpretRuntimeError
	InterpretFatalError
)

// VM represents the virtual machine state.
type VM struct {
	realm *realm.Realm
	h     *heap.Heap
	cfg   Config

	// frames is the active call stack, innermost last.
	frames []*CallFrame
	// inHost is set while host code (a native function or a microtask
	// job) is the innermost activation. Nodes allocated then are appended
	// to hostNodes and rooted until that activation returns, since Go
	// locals are invisible to the collector.
	inHost    bool
	hostNodes []heap.Node
	// temps are extra roots held across guest calls by host code.
	temps []heap.Value

	templates map[templateKey]*heap.Object
	evals     map[evalKey]evalEntry
}

type templateKey struct {
	module *bytecode.Module
	index  int
}

// New creates a VM for r and installs it as the realm's invoker.
func New(r *realm.Realm, cfg Config) *VM {
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = DefaultMaxCallDepth
	}
	vm := &VM{
		realm:     r,
		h:         r.Heap,
		cfg:       cfg,
		templates: map[templateKey]*heap.Object{},
		evals:     map[evalKey]evalEntry{},
	}
	r.Heap.SetInvoker(vm)
	r.Heap.OnTrack(vm.trackHost)
	r.Hooks.Construct = vm.Construct
	r.Hooks.Eval = vm.indirectEval
	r.Hooks.DynamicFunction = vm.dynamicFunction
	r.Hooks.StackTrace = vm.StackTrace
	r.Hooks.Collect = vm.Collect
	return vm
}

// Realm returns the realm the VM runs in.
func (vm *VM) Realm() *realm.Realm { return vm.realm }

// RunModule executes m with env as its scope and returns the completion
// value. A nil env runs in the global scope.
func (vm *VM) RunModule(m *bytecode.Module, env *scope.Scope, this heap.Value) (v heap.Value, err error) {
	if len(vm.frames) == 0 {
		defer vm.recoverFatal(&v, &err)
	}
	if env == nil {
		env = vm.realm.GlobalScope
	}
	if !env.IsGlobal() && !this.IsUndefined() {
		env.SetFunction(nil, this, heap.Undefined, nil)
	}
	f := newFrame(m, env)
	f.file = m.Name
	if this.IsUndefined() && env.IsGlobal() {
		f.this = heap.ObjectValue(vm.realm.GlobalObject)
	} else {
		f.this = this
	}
	return vm.execute(f)
}

// Interpret runs a script module in the global scope and classifies the
// outcome the way the command line reports it.
func (vm *VM) Interpret(m *bytecode.Module) (heap.Value, InterpretResult, error) {
	v, err := vm.RunModule(m, nil, heap.Undefined)
	if err != nil {
		if _, ok := vm.realm.ToException(err); ok {
			return v, InterpretRuntimeError, err
		}
		return v, InterpretFatalError, err
	}
	return v, InterpretOK, nil
}

// Call implements heap.Invoker. Host code calls guest functions through
// it.
func (vm *VM) Call(fn *heap.Object, this heap.Value, args []heap.Value) (heap.Value, error) {
	v, err := vm.call(fn, this, args)
	vm.rootForHost(v)
	return v, err
}

// Construct runs fn as a constructor on behalf of host code.
func (vm *VM) Construct(fn *heap.Object, args []heap.Value, newTarget *heap.Object) (heap.Value, error) {
	if newTarget == nil {
		newTarget = fn
	}
	v, err := vm.construct(fn, args, newTarget)
	vm.rootForHost(v)
	return v, err
}

// RunMicrotasks drains the realm's job queue.
func (vm *VM) RunMicrotasks() error {
	for {
		mark, prev := vm.enterHost()
		ran, err := vm.realm.RunNextMicrotask()
		vm.leaveHost(mark, prev)
		if err != nil || !ran {
			return err
		}
	}
}

// StackTrace describes the active frames, innermost first.
func (vm *VM) StackTrace() []string {
	out := make([]string, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0 && len(out) < maxStackFrames; i-- {
		f := vm.frames[i]
		line, col := f.position()
		name := f.name
		if name == "" {
			name = "<anonymous>"
		}
		out = append(out, fmt.Sprintf("%s (%s:%d:%d)", name, f.file, line, col))
	}
	return out
}

// Depth is the number of active frames.
func (vm *VM) Depth() int { return len(vm.frames) }

// keep roots v until the returned mark is dropped.
func (vm *VM) keep(vs ...heap.Value) int {
	mark := len(vm.temps)
	vm.temps = append(vm.temps, vs...)
	return mark
}

func (vm *VM) drop(mark int) {
	for i := mark; i < len(vm.temps); i++ {
		vm.temps[i] = heap.Undefined
	}
	vm.temps = vm.temps[:mark]
}

// enterHost starts a host activation. Every node allocated until the
// matching leaveHost stays rooted.
func (vm *VM) enterHost() (mark int, prev bool) {
	prev = vm.inHost
	vm.inHost = true
	return len(vm.hostNodes), prev
}

func (vm *VM) leaveHost(mark int, prev bool) {
	clear(vm.hostNodes[mark:])
	vm.hostNodes = vm.hostNodes[:mark]
	vm.inHost = prev
}

func (vm *VM) trackHost(n heap.Node) {
	if vm.inHost {
		vm.hostNodes = append(vm.hostNodes, n)
	}
}

// rootForHost keeps values alive for the running host activation: its
// arguments and whatever guest code returned to it.
func (vm *VM) rootForHost(vs ...heap.Value) {
	if !vm.inHost {
		return
	}
	for _, v := range vs {
		if n := v.Node(); n != nil {
			vm.hostNodes = append(vm.hostNodes, n)
		}
	}
}

// recoverFatal turns a panic escaping the outermost run into a fatal error
// and resets the machine so the realm stays usable.
func (vm *VM) recoverFatal(v *heap.Value, err *error) {
	x := recover()
	if x == nil {
		return
	}
	var pos errors.Position
	if n := len(vm.frames); n > 0 {
		pos.Line, pos.Column = vm.frames[n-1].position()
	}
	clear(vm.frames)
	vm.frames = vm.frames[:0]
	vm.drop(0)
	vm.leaveHost(0, false)
	*v = heap.Undefined
	*err = &errors.FatalError{Position: pos, Msg: fmt.Sprintf("internal error: %v", x)}
}

// fatalf reports corrupt bytecode or VM state at the current instruction.
func (vm *VM) fatalf(f *CallFrame, format string, args ...interface{}) error {
	line, col := f.position()
	return &errors.FatalError{
		Position: errors.Position{Line: line, Column: col},
		Msg:      fmt.Sprintf(format, args...),
	}
}

// ToRuntimeError converts an uncaught guest exception into a host error
// carrying the throw position and stack.
func ToRuntimeError(r *realm.Realm, err error) error {
	ex, ok := r.ToException(err)
	if !ok {
		return err
	}
	name, msg := realm.ErrorParts(ex.Value)
	if name != "" {
		if msg != "" {
			msg = name + ": " + msg
		} else {
			msg = name
		}
	}
	stack := ""
	for _, s := range ex.Stack() {
		stack += "    at " + s + "\n"
	}
	return &errors.RuntimeError{
		Position: errors.Position{Line: ex.Line, Column: ex.Column},
		Msg:      "Uncaught " + msg,
		Stack:    stack,
		Cause:    ex,
	}
}
