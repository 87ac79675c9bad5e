package builtins

import (
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string { return "Promise" }

func (p *PromiseInitializer) Priority() int { return PriorityPromise }

func thisPromise(r *realm.Realm, this heap.Value, method string) (*heap.Object, error) {
	if realm.PromiseOf(this) == nil {
		return nil, r.NewTypeError("Method Promise.prototype.%s called on incompatible receiver %s", method, this.Inspect())
	}
	return this.AsObject(), nil
}

func (p *PromiseInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.PromisePrototype, proto); err != nil {
		return err
	}
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Promise"), heap.Configurable))

	ctor := r.NewNativeConstructor("Promise", 1, nil,
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			executor := arg(args, 0)
			if !executor.IsCallable() {
				return heap.Undefined, r.NewTypeError("Promise resolver %s is not a function", executor.Inspect())
			}
			pp, err := protoFromCtor(r, newTarget, realm.PromisePrototype)
			if err != nil {
				return heap.Undefined, err
			}
			promise := r.NewPromise(pp)
			resolve, reject := r.ResolvingFunctions(promise)
			if _, err := r.Call(executor, heap.Undefined, heap.ObjectValue(resolve), heap.ObjectValue(reject)); err != nil {
				ex, ok := r.ToException(err)
				if !ok {
					return heap.Undefined, err
				}
				if _, err := r.Call(heap.ObjectValue(reject), heap.Undefined, ex.Value); err != nil {
					return heap.Undefined, err
				}
			}
			return heap.ObjectValue(promise), nil
		}, proto)
	r.Getter(ctor, heap.SymbolKey(heap.SymSpecies), func(_ []heap.Value, this heap.Value, _ *realm.Realm) (heap.Value, error) {
		return this, nil
	})

	r.Method(proto, "then", 2, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		p, err := thisPromise(r, this, "then")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(r.PromiseThen(p, arg(args, 0), arg(args, 1))), nil
	})
	r.Method(proto, "catch", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return invoke(r, this, "then", heap.Undefined, arg(args, 0))
	})
	r.Method(proto, "finally", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		onFinally := arg(args, 0)
		if !onFinally.IsCallable() {
			return invoke(r, this, "then", onFinally, onFinally)
		}
		thenFinally := r.NewNativeFunction("", 1, func(a []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			res, err := r.Call(onFinally, heap.Undefined)
			if err != nil {
				return heap.Undefined, err
			}
			value := arg(a, 0)
			after := r.PromiseResolve(res)
			valueThunk := r.NewNativeFunction("", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
				return value, nil
			})
			pin(valueThunk, value)
			return heap.ObjectValue(r.PromiseThen(after, heap.ObjectValue(valueThunk), heap.Undefined)), nil
		})
		catchFinally := r.NewNativeFunction("", 1, func(a []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			res, err := r.Call(onFinally, heap.Undefined)
			if err != nil {
				return heap.Undefined, err
			}
			reason := arg(a, 0)
			after := r.PromiseResolve(res)
			thrower := r.NewNativeFunction("", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
				return heap.Undefined, realm.NewException(reason)
			})
			pin(thrower, reason)
			return heap.ObjectValue(r.PromiseThen(after, heap.ObjectValue(thrower), heap.Undefined)), nil
		})
		pin(thenFinally, onFinally)
		pin(catchFinally, onFinally)
		return invoke(r, this, "then", heap.ObjectValue(thenFinally), heap.ObjectValue(catchFinally))
	})

	r.Method(ctor, "resolve", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return heap.ObjectValue(r.PromiseResolve(arg(args, 0))), nil
	})
	r.Method(ctor, "reject", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		p := r.NewPromise(nil)
		r.RejectPromise(p, arg(args, 0))
		return heap.ObjectValue(p), nil
	})
	r.Method(ctor, "withResolvers", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		p := r.NewPromise(nil)
		resolve, reject := r.ResolvingFunctions(p)
		o := r.NewObject()
		o.Put("promise", heap.ObjectValue(p))
		o.Put("resolve", heap.ObjectValue(resolve))
		o.Put("reject", heap.ObjectValue(reject))
		return heap.ObjectValue(o), nil
	})
	r.Method(ctor, "all", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return combinePromises(r, arg(args, 0), combineAll)
	})
	r.Method(ctor, "allSettled", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return combinePromises(r, arg(args, 0), combineAllSettled)
	})
	r.Method(ctor, "any", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return combinePromises(r, arg(args, 0), combineAny)
	})
	r.Method(ctor, "race", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		result := r.NewPromise(nil)
		resolve, reject := r.ResolvingFunctions(result)
		err := iterate(r, arg(args, 0), func(v heap.Value) (bool, error) {
			_, err := invoke(r, heap.ObjectValue(r.PromiseResolve(v)), "then", heap.ObjectValue(resolve), heap.ObjectValue(reject))
			return err == nil, err
		})
		if err := rejectOnError(r, result, err); err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(result), nil
	})

	if err := ctx.Intrinsic(realm.PromiseConstructor, ctor); err != nil {
		return err
	}
	return ctx.DefineGlobal("Promise", heap.ObjectValue(ctor))
}

// invoke calls the named method of v.
func invoke(r *realm.Realm, v heap.Value, name string, args ...heap.Value) (heap.Value, error) {
	fn, err := r.Get(v, name)
	if err != nil {
		return heap.Undefined, err
	}
	return r.Call(fn, v, args...)
}

// rejectOnError turns a guest exception raised while setting up a
// combinator into a rejection of result.
func rejectOnError(r *realm.Realm, result *heap.Object, err error) error {
	if err == nil {
		return nil
	}
	ex, ok := r.ToException(err)
	if !ok {
		return err
	}
	r.RejectPromise(result, ex.Value)
	return nil
}

type combinator int

const (
	combineAll combinator = iota
	combineAllSettled
	combineAny
)

// combinePromises implements Promise.all, allSettled and any. Results are
// collected in a guest array so the collector can see them.
func combinePromises(r *realm.Realm, iterable heap.Value, kind combinator) (heap.Value, error) {
	result := r.NewPromise(nil)
	values := r.NewArray(nil)
	remaining := 1
	finish := func() {
		switch kind {
		case combineAny:
			agg := r.NewErrorObject("AggregateError", "All promises were rejected")
			agg.DefineHidden("errors", heap.ObjectValue(values))
			r.RejectPromise(result, heap.ObjectValue(agg))
		default:
			r.ResolvePromise(result, heap.ObjectValue(values))
		}
	}
	settled := func(i int, v heap.Value) {
		values.DefineOwnProperty(index(i), heap.DataDesc(v, heap.DefaultFlags))
		remaining--
		if remaining == 0 {
			finish()
		}
	}
	n := 0
	err := iterate(r, iterable, func(item heap.Value) (bool, error) {
		i := n
		n++
		values.AppendHole()
		remaining++
		called := false
		once := func() bool {
			if called {
				return false
			}
			called = true
			return true
		}
		onFulfilled := r.NewNativeFunction("", 1, func(a []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			if !once() {
				return heap.Undefined, nil
			}
			v := arg(a, 0)
			switch kind {
			case combineAny:
				r.ResolvePromise(result, v)
			case combineAllSettled:
				o := r.NewObject()
				o.Put("status", str("fulfilled"))
				o.Put("value", v)
				settled(i, heap.ObjectValue(o))
			default:
				settled(i, v)
			}
			return heap.Undefined, nil
		})
		onRejected := r.NewNativeFunction("", 1, func(a []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			if !once() {
				return heap.Undefined, nil
			}
			reason := arg(a, 0)
			switch kind {
			case combineAll:
				r.RejectPromise(result, reason)
			case combineAllSettled:
				o := r.NewObject()
				o.Put("status", str("rejected"))
				o.Put("reason", reason)
				settled(i, heap.ObjectValue(o))
			default:
				settled(i, reason)
			}
			return heap.Undefined, nil
		})
		pin(onFulfilled, heap.ObjectValue(result), heap.ObjectValue(values))
		pin(onRejected, heap.ObjectValue(result), heap.ObjectValue(values))
		_, err := invoke(r, heap.ObjectValue(r.PromiseResolve(item)), "then", heap.ObjectValue(onFulfilled), heap.ObjectValue(onRejected))
		return err == nil, err
	})
	if err != nil {
		if err := rejectOnError(r, result, err); err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(result), nil
	}
	remaining--
	if remaining == 0 {
		finish()
	}
	return heap.ObjectValue(result), nil
}
