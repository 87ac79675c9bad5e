package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/scope"
)

// frameState tracks why run returned.
type frameState uint8

const (
	frameRunning frameState = iota
	frameYielded
	frameAwaiting
	frameDone
)

// regionState is the part of a try statement that is executing.
type regionState uint8

const (
	inTry regionState = iota
	inCatch
	inFinally
)

type completionKind uint8

const (
	compNormal completionKind = iota
	compReturn
	compThrow
	compBreak
	compContinue
)

// completion is parked by a finally block and resumed by EndFinally.
type completion struct {
	kind   completionKind
	value  heap.Value
	target *scope.Scope
}

// tryRegion is an active try statement of a frame.
type tryRegion struct {
	catchAddr   int
	finallyAddr int
	binding     int
	scope       *scope.Scope
	stack       int
	staged      int
	state       regionState
	pending     completion
}

// CallFrame represents a single active function call or module body.
type CallFrame struct {
	closure *Closure
	fn      *heap.Object // function object, nil for module bodies
	module  *bytecode.Module
	code    []byte
	ip      int // next instruction
	pc      int // current instruction, for positions

	regs  [bytecode.NumRegisters]heap.Value
	acc   heap.Value
	stack []heap.Value

	args      []heap.Value
	this      heap.Value
	newTarget heap.Value
	arguments *heap.Object

	scope *scope.Scope // current scope
	base  *scope.Scope // function scope

	staged [][]heap.Value
	tries  []tryRegion

	strict bool
	name   string
	file   string

	state    frameState
	co       *coroutine
	delegate *delegation
	// inject is a throw or return delivered by a generator resumption.
	inject *completion
}

func newFrame(m *bytecode.Module, env *scope.Scope) *CallFrame {
	f := &CallFrame{
		module:    m,
		code:      m.Code,
		acc:       heap.Undefined,
		this:      heap.Undefined,
		newTarget: heap.Undefined,
		scope:     env,
		base:      env,
		strict:    m.Strict,
		name:      m.Name,
	}
	for i := range f.regs {
		f.regs[i] = heap.Undefined
	}
	return f
}

// eachNode visits every heap node the frame holds without a counted
// reference. They are roots while the frame runs and pins while it is
// suspended.
func (f *CallFrame) eachNode(visit func(heap.Node)) {
	val := func(v heap.Value) {
		if n := v.Node(); n != nil {
			visit(n)
		}
	}
	if f.fn != nil {
		visit(f.fn)
	}
	for _, v := range f.regs {
		val(v)
	}
	val(f.acc)
	for _, v := range f.stack {
		val(v)
	}
	for _, v := range f.args {
		val(v)
	}
	val(f.this)
	val(f.newTarget)
	if f.arguments != nil {
		visit(f.arguments)
	}
	if f.scope != nil {
		visit(f.scope)
	}
	if f.base != nil && f.base != f.scope {
		visit(f.base)
	}
	for _, args := range f.staged {
		for _, v := range args {
			val(v)
		}
	}
	for i := range f.tries {
		r := &f.tries[i]
		val(r.pending.value)
		if r.scope != nil {
			visit(r.scope)
		}
		if r.pending.target != nil {
			visit(r.pending.target)
		}
	}
	if d := f.delegate; d != nil {
		val(d.value)
	}
	if f.inject != nil {
		val(f.inject.value)
	}
}

// position returns the source location of the current instruction.
func (f *CallFrame) position() (line, column int) {
	return f.module.Position(f.pc)
}

func (f *CallFrame) push(v heap.Value) { f.stack = append(f.stack, v) }

func (f *CallFrame) pop() heap.Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = heap.Undefined
	f.stack = f.stack[:n]
	return v
}

// takeArgs removes the innermost staged argument list.
func (f *CallFrame) takeArgs() []heap.Value {
	n := len(f.staged) - 1
	if n < 0 {
		return nil
	}
	args := f.staged[n]
	f.staged[n] = nil
	f.staged = f.staged[:n]
	return args
}

func (f *CallFrame) stage(v heap.Value) {
	n := len(f.staged) - 1
	f.staged[n] = append(f.staged[n], v)
}
