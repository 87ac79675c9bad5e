package realm

import (
	"cinder/pkg/heap"
)

// PromiseState is the settlement state of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	}
	return "unknown"
}

// Continuation is a host reaction to a settled promise. The VM uses it to
// resume suspended async frames.
type Continuation func(v heap.Value, rejected bool) error

type reaction struct {
	onFulfilled heap.Value
	onRejected  heap.Value
	native      Continuation
	// derived is the promise returned by then; nil for host reactions.
	derived *heap.Object
}

// Promise is the internal slot of promise objects.
type Promise struct {
	State     PromiseState
	Result    heap.Value
	Handled   bool
	reactions []reaction
}

func (p *Promise) EachRef(visit func(heap.Node)) {
	if n := p.Result.Node(); n != nil {
		visit(n)
	}
	for _, r := range p.reactions {
		for _, v := range [...]heap.Value{r.onFulfilled, r.onRejected} {
			if n := v.Node(); n != nil {
				visit(n)
			}
		}
		if r.derived != nil {
			visit(r.derived)
		}
	}
}

// PromiseOf returns the promise slot of o, or nil.
func PromiseOf(v heap.Value) *Promise {
	if o := v.AsObject(); o != nil {
		p, _ := o.Internal.(*Promise)
		return p
	}
	return nil
}

// NewPromise allocates a pending promise inheriting from proto, or from
// Promise.prototype when proto is nil.
func (r *Realm) NewPromise(proto *heap.Object) *heap.Object {
	if proto == nil {
		proto = r.Intrinsic(PromisePrototype)
		if proto == nil {
			proto = r.Intrinsic(ObjectPrototype)
		}
	}
	return r.Heap.NewObjectOf("Promise", proto, &Promise{})
}

// PromiseResolve returns v when it already is a promise and otherwise a new
// promise resolved with v.
func (r *Realm) PromiseResolve(v heap.Value) *heap.Object {
	if PromiseOf(v) != nil {
		return v.AsObject()
	}
	p := r.NewPromise(nil)
	r.ResolvePromise(p, v)
	return p
}

// ResolvePromise resolves p with v, adopting the state of thenables.
func (r *Realm) ResolvePromise(p *heap.Object, v heap.Value) {
	if o := v.AsObject(); o != nil {
		if o == p {
			r.RejectPromise(p, r.NewTypeError("Chaining cycle detected for promise #<Promise>").Value)
			return
		}
		then, err := r.Heap.Get(o, heap.StringKey("then"), v)
		if err != nil {
			if ex, ok := r.ToException(err); ok {
				r.RejectPromise(p, ex.Value)
			}
			return
		}
		if then.IsCallable() {
			r.EnqueueMicrotask(func() error {
				resolve, reject := r.ResolvingFunctions(p)
				if _, err := r.Call(then, v, heap.ObjectValue(resolve), heap.ObjectValue(reject)); err != nil {
					ex, ok := r.ToException(err)
					if !ok {
						return err
					}
					_, err = r.Call(heap.ObjectValue(reject), heap.Undefined, ex.Value)
					return err
				}
				return nil
			}, heap.ObjectValue(p), v, then)
			return
		}
	}
	r.settle(p, PromiseFulfilled, v)
}

// RejectPromise rejects p with reason.
func (r *Realm) RejectPromise(p *heap.Object, reason heap.Value) {
	r.settle(p, PromiseRejected, reason)
}

func (r *Realm) settle(p *heap.Object, state PromiseState, v heap.Value) {
	ps := p.Internal.(*Promise)
	if ps.State != PromisePending {
		return
	}
	ps.State = state
	r.Heap.Retain(v)
	ps.Result = v
	reactions := ps.reactions
	ps.reactions = nil
	for _, re := range reactions {
		r.scheduleReaction(ps, re)
		r.releaseReaction(re)
	}
	if state == PromiseRejected && !ps.Handled {
		r.trackRejection(p)
	}
}

// ResolvingFunctions creates the resolve and reject functions handed to an
// executor or a thenable. Only the first call of either has an effect.
func (r *Realm) ResolvingFunctions(p *heap.Object) (resolve, reject *heap.Object) {
	done := false
	resolve = r.NewNativeFunction("", 1, func(args []heap.Value, _ heap.Value, r *Realm) (heap.Value, error) {
		if !done {
			done = true
			r.ResolvePromise(p, Arg(args, 0))
		}
		return heap.Undefined, nil
	})
	reject = r.NewNativeFunction("", 1, func(args []heap.Value, _ heap.Value, r *Realm) (heap.Value, error) {
		if !done {
			done = true
			r.RejectPromise(p, Arg(args, 0))
		}
		return heap.Undefined, nil
	})
	// The Go closures reach p; the properties make that edge visible to
	// the collector.
	resolve.DefineHiddenKey(heap.SymbolKey(promiseSlot), heap.ObjectValue(p))
	reject.DefineHiddenKey(heap.SymbolKey(promiseSlot), heap.ObjectValue(p))
	return resolve, reject
}

var promiseSlot = &heap.Symbol{Description: "promise", HasDescription: true, Private: true}

// PromiseThen registers guest reactions on p and returns the derived
// promise.
func (r *Realm) PromiseThen(p *heap.Object, onFulfilled, onRejected heap.Value) *heap.Object {
	derived := r.NewPromise(nil)
	if !onFulfilled.IsCallable() {
		onFulfilled = heap.Undefined
	}
	if !onRejected.IsCallable() {
		onRejected = heap.Undefined
	}
	r.addReaction(p, reaction{onFulfilled: onFulfilled, onRejected: onRejected, derived: derived})
	return derived
}

// PromiseThenNative registers a host continuation on p.
func (r *Realm) PromiseThenNative(p *heap.Object, k Continuation) {
	r.addReaction(p, reaction{native: k})
}

func (r *Realm) addReaction(p *heap.Object, re reaction) {
	ps := p.Internal.(*Promise)
	if ps.State == PromiseRejected && !ps.Handled {
		r.untrackRejection(p)
	}
	ps.Handled = true
	if ps.State != PromisePending {
		r.scheduleReaction(ps, re)
		return
	}
	r.Heap.Retain(re.onFulfilled)
	r.Heap.Retain(re.onRejected)
	if re.derived != nil {
		r.Heap.RetainNode(re.derived)
	}
	ps.reactions = append(ps.reactions, re)
}

func (r *Realm) releaseReaction(re reaction) {
	r.Heap.Release(re.onFulfilled)
	r.Heap.Release(re.onRejected)
	if re.derived != nil {
		r.Heap.ReleaseNode(re.derived)
	}
}

func (r *Realm) scheduleReaction(ps *Promise, re reaction) {
	rejected := ps.State == PromiseRejected
	v := ps.Result
	pins := []heap.Value{v, re.onFulfilled, re.onRejected}
	if re.derived != nil {
		pins = append(pins, heap.ObjectValue(re.derived))
	}
	r.EnqueueMicrotask(func() error {
		if re.native != nil {
			return re.native(v, rejected)
		}
		handler := re.onFulfilled
		if rejected {
			handler = re.onRejected
		}
		if handler.IsUndefined() {
			if rejected {
				r.RejectPromise(re.derived, v)
			} else {
				r.ResolvePromise(re.derived, v)
			}
			return nil
		}
		out, err := r.Call(handler, heap.Undefined, v)
		if err != nil {
			ex, ok := r.ToException(err)
			if !ok {
				return err
			}
			r.RejectPromise(re.derived, ex.Value)
			return nil
		}
		r.ResolvePromise(re.derived, out)
		return nil
	}, pins...)
}

func (r *Realm) trackRejection(p *heap.Object) {
	r.Heap.RetainNode(p)
	r.rejections = append(r.rejections, p)
}

func (r *Realm) untrackRejection(p *heap.Object) {
	for i, q := range r.rejections {
		if q == p {
			r.rejections = append(r.rejections[:i], r.rejections[i+1:]...)
			r.Heap.ReleaseNode(p)
			return
		}
	}
}

// TakeUnhandledRejections returns the reasons of promises rejected without
// a handler since the last call.
func (r *Realm) TakeUnhandledRejections() []heap.Value {
	var out []heap.Value
	for _, p := range r.rejections {
		out = append(out, p.Internal.(*Promise).Result)
		r.Heap.ReleaseNode(p)
	}
	r.rejections = nil
	return out
}

// IterResult creates an iterator result object { value, done }.
func (r *Realm) IterResult(v heap.Value, done bool) heap.Value {
	o := r.NewObject()
	o.Put("value", v)
	o.Put("done", heap.BooleanValue(done))
	return heap.ObjectValue(o)
}
