package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type coState uint8

const (
	coSuspendedStart coState = iota
	coSuspendedYield
	coExecuting
	coAwaiting
	coCompleted
)

// coroutine is the suspended state of a generator or async frame. It is
// the internal slot of generator objects.
type coroutine struct {
	vm        *VM
	frame     *CallFrame
	state     coState
	async     bool
	generator bool
	// promise is the result of an async function call.
	promise *heap.Object
	// queue holds the pending requests of an async generator.
	queue []asyncRequest
	// pins are the frame nodes retained while suspended.
	pins []heap.Node
}

// EachRef reports the pins of a generator suspended at a yield; they are
// owned by the generator object. Pins of an awaiting frame are owned by
// the promise reaction and stay unattributed.
func (co *coroutine) EachRef(visit func(heap.Node)) {
	if co.state != coSuspendedStart && co.state != coSuspendedYield {
		return
	}
	for _, n := range co.pins {
		visit(n)
	}
}

func (co *coroutine) IsAsync() bool { return co.async }

// Resume implements realm.Coroutine for generator objects.
func (co *coroutine) Resume(mode realm.ResumeMode, v heap.Value) (heap.Value, error) {
	if co.async {
		return co.vm.asyncGeneratorEnqueue(co, mode, v), nil
	}
	return co.vm.resumeGenerator(co, mode, v)
}

// complete releases the frame of a finished coroutine.
func (vm *VM) complete(co *coroutine) {
	vm.unpin(co)
	co.state = coCompleted
	co.frame = nil
}

// delegatePhase is the progress of a yield* step.
type delegatePhase uint8

const (
	delegateCall delegatePhase = iota
	delegateAwait
	delegateYielded
)

// delegation is the state of an active yield*.
type delegation struct {
	mode  realm.ResumeMode
	value heap.Value
	phase delegatePhase
}

// startGenerator runs the prologue of a generator call up to its initial
// suspension and returns the generator object.
func (vm *VM) startGenerator(f *CallFrame) (heap.Value, error) {
	bp := f.closure.Blueprint
	co := &coroutine{vm: vm, frame: f, generator: true, async: bp.Has(bytecode.FuncAsync), state: coExecuting}
	f.co = co
	if _, err := vm.execute(f); err != nil {
		return heap.Undefined, err
	}
	if f.state != frameYielded {
		return heap.Undefined, vm.fatalf(f, "generator prologue did not suspend")
	}
	co.state = coSuspendedStart
	vm.pin(co)

	class, fallback := "Generator", realm.GeneratorPrototype
	if co.async {
		class, fallback = "AsyncGenerator", realm.AsyncGeneratorPrototype
	}
	proto, err := vm.prototypeFor(f.fn, fallback)
	if err != nil {
		vm.complete(co)
		return heap.Undefined, err
	}
	return heap.ObjectValue(vm.h.NewObjectOf(class, proto, co)), nil
}

// resumeGenerator performs next, return or throw on a sync generator.
func (vm *VM) resumeGenerator(co *coroutine, mode realm.ResumeMode, v heap.Value) (heap.Value, error) {
	r := vm.realm
	switch co.state {
	case coExecuting:
		return heap.Undefined, r.NewTypeError("Generator is already running")
	case coSuspendedStart:
		if mode != realm.ResumeNext {
			vm.complete(co)
		}
	}
	if co.state == coCompleted {
		switch mode {
		case realm.ResumeThrow:
			return heap.Undefined, realm.NewException(v)
		case realm.ResumeReturn:
			return r.IterResult(v, true), nil
		}
		return r.IterResult(heap.Undefined, true), nil
	}

	f := co.frame
	res, err := vm.resumeFrame(co, mode, v)
	if err != nil {
		vm.complete(co)
		return heap.Undefined, err
	}
	switch f.state {
	case frameYielded:
		co.state = coSuspendedYield
		vm.pin(co)
		if f.delegate != nil {
			return res, nil
		}
		return r.IterResult(res, false), nil
	case frameDone:
		vm.complete(co)
		return r.IterResult(res, true), nil
	}
	vm.complete(co)
	return heap.Undefined, vm.fatalf(f, "generator suspended without yielding")
}

// resumeFrame delivers a resumption to a suspended frame and runs it to its
// next suspension.
func (vm *VM) resumeFrame(co *coroutine, mode realm.ResumeMode, v heap.Value) (heap.Value, error) {
	f := co.frame
	vm.unpin(co)
	co.state = coExecuting
	f.state = frameRunning
	if d := f.delegate; d != nil && d.phase == delegateYielded {
		d.mode, d.value, d.phase = mode, v, delegateCall
	} else {
		switch mode {
		case realm.ResumeNext:
			f.acc = v
		case realm.ResumeThrow:
			f.inject = &completion{kind: compThrow, value: v}
		case realm.ResumeReturn:
			f.inject = &completion{kind: compReturn, value: v}
		}
	}
	return vm.execute(f)
}

// yieldDelegate runs one step of yield* over the record in reg. It reports
// suspend when the frame must suspend, and done when the frame returned.
func (vm *VM) yieldDelegate(f *CallFrame, it heap.Value) (suspend, done bool, err error) {
	r := vm.realm
	rec := iterRecordOf(it)
	if rec == nil {
		return false, false, vm.fatalf(f, "yield* without an iterator record")
	}
	d := f.delegate
	if d == nil {
		d = &delegation{mode: realm.ResumeNext, value: heap.Undefined}
		f.delegate = d
	}

	var res heap.Value
	if d.phase == delegateAwait {
		res = f.acc
	} else {
		var handled bool
		res, handled, err = vm.delegateCall(f, rec, d)
		if err != nil {
			f.delegate = nil
			return false, false, err
		}
		if handled {
			f.delegate = nil
			done, err := vm.doReturn(f, d.value)
			return false, done, err
		}
		if rec.async {
			d.phase = delegateAwait
			f.ip = f.pc
			return true, false, vm.await(f, res)
		}
	}
	d.phase = delegateCall

	o := res.AsObject()
	if o == nil {
		f.delegate = nil
		return false, false, r.NewTypeError("Iterator result %s is not an object", res.Inspect())
	}
	doneV, err := vm.h.Get(o, heap.StringKey("done"), res)
	if err != nil {
		f.delegate = nil
		return false, false, err
	}
	if heap.ToBoolean(doneV) {
		value, err := vm.h.Get(o, heap.StringKey("value"), res)
		mode := d.mode
		f.delegate = nil
		if err != nil {
			return false, false, err
		}
		if mode == realm.ResumeReturn {
			done, err := vm.doReturn(f, value)
			return false, done, err
		}
		f.acc = value
		return false, false, nil
	}

	d.phase = delegateYielded
	f.ip = f.pc
	f.state = frameYielded
	if f.co != nil && f.co.async {
		value, err := vm.h.Get(o, heap.StringKey("value"), res)
		if err != nil {
			f.delegate = nil
			return false, false, err
		}
		f.acc = value
		return true, false, nil
	}
	f.acc = res
	return true, false, nil
}

// delegateCall forwards the pending resumption to the inner iterator.
// handled is set when a return request finds no return method.
func (vm *VM) delegateCall(f *CallFrame, rec *iterRecord, d *delegation) (res heap.Value, handled bool, err error) {
	r := vm.realm
	switch d.mode {
	case realm.ResumeThrow:
		m, err := vm.h.GetMethod(rec.iterator, heap.StringKey("throw"), r.ProtoOf(rec.iterator))
		if err != nil {
			return heap.Undefined, false, err
		}
		if m == nil {
			if err := vm.closeIterator(rec); err != nil {
				return heap.Undefined, false, err
			}
			return heap.Undefined, false, r.NewTypeError("The iterator does not provide a 'throw' method")
		}
		res, err = vm.call(m, rec.iterator, []heap.Value{d.value})
		return res, false, err
	case realm.ResumeReturn:
		m, err := vm.h.GetMethod(rec.iterator, heap.StringKey("return"), r.ProtoOf(rec.iterator))
		if err != nil {
			return heap.Undefined, false, err
		}
		if m == nil {
			return heap.Undefined, true, nil
		}
		res, err = vm.call(m, rec.iterator, []heap.Value{d.value})
		return res, false, err
	}
	res, err = vm.callValue(rec.next, rec.iterator, []heap.Value{d.value})
	return res, false, err
}
