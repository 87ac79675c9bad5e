package vm

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// asyncRequest is a pending next, return or throw call on an async
// generator.
type asyncRequest struct {
	mode    realm.ResumeMode
	value   heap.Value
	promise *heap.Object
}

// startAsync runs an async function until its first await and returns the
// promise of its result.
func (vm *VM) startAsync(f *CallFrame) (heap.Value, error) {
	p := vm.realm.NewPromise(nil)
	vm.h.RetainNode(p)
	co := &coroutine{vm: vm, frame: f, async: true, promise: p, state: coExecuting}
	f.co = co
	mark := vm.keep(heap.ObjectValue(p))
	defer vm.drop(mark)
	v, err := vm.execute(f)
	if err := vm.settleAsync(co, v, err); err != nil {
		return heap.Undefined, err
	}
	return heap.ObjectValue(p), nil
}

// settleAsync finishes one run of an async function frame.
func (vm *VM) settleAsync(co *coroutine, v heap.Value, err error) error {
	r := vm.realm
	if err != nil {
		ex, ok := r.ToException(err)
		if !ok {
			return err
		}
		vm.finishAsync(co)
		r.RejectPromise(co.promise, ex.Value)
		vm.h.ReleaseNode(co.promise)
		return nil
	}
	if co.frame.state == frameDone {
		vm.finishAsync(co)
		r.ResolvePromise(co.promise, v)
		vm.h.ReleaseNode(co.promise)
	}
	return nil
}

func (vm *VM) finishAsync(co *coroutine) {
	vm.complete(co)
}

// await suspends f until v settles. The frame resumes from a microtask
// with the fulfilment value in acc or the rejection thrown.
func (vm *VM) await(f *CallFrame, v heap.Value) error {
	co := f.co
	if co == nil || !co.async {
		return vm.fatalf(f, "await outside of an async function")
	}
	r := vm.realm
	p := r.PromiseResolve(v)
	r.PromiseThenNative(p, func(res heap.Value, rejected bool) error {
		mode := realm.ResumeNext
		if rejected {
			mode = realm.ResumeThrow
		}
		return vm.continueAsync(co, mode, res)
	})
	f.state = frameAwaiting
	co.state = coAwaiting
	vm.pin(co)
	return nil
}

// continueAsync resumes an awaiting frame from a promise reaction.
func (vm *VM) continueAsync(co *coroutine, mode realm.ResumeMode, v heap.Value) error {
	if co.state != coAwaiting {
		return nil
	}
	f := co.frame
	vm.unpin(co)
	co.state = coExecuting
	f.state = frameRunning
	switch mode {
	case realm.ResumeThrow:
		f.inject = &completion{kind: compThrow, value: v}
	default:
		f.acc = v
	}
	res, err := vm.execute(f)
	if !co.generator {
		return vm.settleAsync(co, res, err)
	}
	if err := vm.asyncGeneratorStep(co, res, err); err != nil {
		return err
	}
	return vm.asyncGeneratorDrain(co)
}

// asyncGeneratorEnqueue queues a request and returns its promise.
func (vm *VM) asyncGeneratorEnqueue(co *coroutine, mode realm.ResumeMode, v heap.Value) heap.Value {
	p := vm.realm.NewPromise(nil)
	vm.h.RetainNode(p)
	vm.h.Retain(v)
	co.queue = append(co.queue, asyncRequest{mode: mode, value: v, promise: p})
	mark := vm.keep(heap.ObjectValue(p))
	defer vm.drop(mark)
	if err := vm.asyncGeneratorDrain(co); err != nil {
		log.Errorf("async generator: %s", err)
	}
	return heap.ObjectValue(p)
}

// settleRequest resolves or rejects the oldest request.
func (vm *VM) settleRequest(co *coroutine, v heap.Value, done, rejected bool) {
	r := vm.realm
	req := co.queue[0]
	co.queue[0] = asyncRequest{}
	co.queue = co.queue[1:]
	if rejected {
		r.RejectPromise(req.promise, v)
	} else {
		r.ResolvePromise(req.promise, r.IterResult(v, done))
	}
	vm.h.ReleaseNode(req.promise)
	vm.h.Release(req.value)
}

// asyncGeneratorDrain resumes the generator for queued requests until it
// awaits or the queue is empty.
func (vm *VM) asyncGeneratorDrain(co *coroutine) error {
	for len(co.queue) > 0 {
		if co.state == coExecuting || co.state == coAwaiting {
			return nil
		}
		req := co.queue[0]
		if co.state == coSuspendedStart && req.mode != realm.ResumeNext {
			vm.complete(co)
		}
		if co.state == coCompleted {
			switch req.mode {
			case realm.ResumeThrow:
				vm.settleRequest(co, req.value, true, true)
			case realm.ResumeReturn:
				vm.settleRequest(co, req.value, true, false)
			default:
				vm.settleRequest(co, heap.Undefined, true, false)
			}
			continue
		}
		res, err := vm.resumeFrame(co, req.mode, req.value)
		if err := vm.asyncGeneratorStep(co, res, err); err != nil {
			return err
		}
	}
	return nil
}

// asyncGeneratorStep settles the oldest request after the frame stopped.
func (vm *VM) asyncGeneratorStep(co *coroutine, res heap.Value, err error) error {
	if err != nil {
		ex, ok := vm.realm.ToException(err)
		if !ok {
			vm.complete(co)
			return err
		}
		vm.complete(co)
		vm.settleRequest(co, ex.Value, true, true)
		return nil
	}
	f := co.frame
	switch f.state {
	case frameAwaiting:
		return nil
	case frameYielded:
		co.state = coSuspendedYield
		vm.pin(co)
		vm.settleRequest(co, res, false, false)
	case frameDone:
		vm.complete(co)
		vm.settleRequest(co, res, true, false)
	}
	return nil
}
