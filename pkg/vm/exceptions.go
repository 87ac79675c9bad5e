package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
)

// unwind dispatches err to the innermost handler of f. It returns nil when
// a catch or finally block of f takes over and the error to propagate
// otherwise. Host errors are never catchable.
func (vm *VM) unwind(f *CallFrame, err error) error {
	ex, ok := vm.realm.ToException(err)
	if !ok {
		return err
	}
	if ex.Line == 0 {
		line, col := f.position()
		ex.SetPosition(f.file, line, col)
	}
	if ex.Stack() == nil {
		ex.SetStack(vm.StackTrace())
	}
	f.delegate = nil

	for len(f.tries) > 0 {
		r := &f.tries[len(f.tries)-1]
		switch {
		case r.state == inTry && r.catchAddr != bytecode.NoAddr:
			vm.closeScopes(f, r.scope)
			vm.trimRegion(f, r)
			r.state = inCatch
			env := scope.New(vm.h, f.scope, scope.FlagCatch|scope.FlagBlock)
			f.scope = env
			if r.binding != bytecode.NoVar {
				name := f.module.VarName(r.binding)
				env.Declare(name, scope.CatchParam)
				env.Initialize(name, ex.Value)
			}
			f.acc = ex.Value
			f.ip = r.catchAddr
			return nil
		case r.state != inFinally && r.finallyAddr != bytecode.NoAddr:
			vm.closeScopes(f, r.scope)
			vm.trimRegion(f, r)
			r.state = inFinally
			r.pending = completion{kind: compThrow, value: ex.Value}
			f.ip = r.finallyAddr
			return nil
		}
		f.popTry()
	}
	vm.closeScopes(f, f.base)
	return ex
}

// closeScopes pops scopes down to target, closing attached iterators. It
// returns the first close error.
func (vm *VM) closeScopes(f *CallFrame, target *scope.Scope) error {
	var first error
	for f.scope != nil && f.scope != target {
		s := f.scope
		if err := vm.closeAttached(s); err != nil && first == nil {
			first = err
		}
		f.scope = s.Parent()
	}
	return first
}

func (vm *VM) closeAttached(s *scope.Scope) error {
	if !s.HasIterator() {
		return nil
	}
	it := s.DetachIterator()
	mark := vm.keep(it)
	defer vm.drop(mark)
	if rec := iterRecordOf(it); rec != nil {
		return vm.closeIterator(rec)
	}
	return nil
}

// trimRegion restores the operand stack and staged arguments to their
// heights at EnterTry.
func (vm *VM) trimRegion(f *CallFrame, r *tryRegion) {
	for len(f.stack) > r.stack {
		f.pop()
	}
	for len(f.staged) > r.staged {
		f.takeArgs()
	}
}

func (f *CallFrame) popTry() tryRegion {
	n := len(f.tries) - 1
	r := f.tries[n]
	f.tries[n] = tryRegion{}
	f.tries = f.tries[:n]
	return r
}

// exitTry leaves the try or catch part of the innermost region.
func (vm *VM) exitTry(f *CallFrame) {
	r := &f.tries[len(f.tries)-1]
	if r.state != inFinally && r.finallyAddr != bytecode.NoAddr {
		r.state = inFinally
		r.pending = completion{kind: compNormal}
		f.ip = r.finallyAddr
		return
	}
	f.popTry()
}

// endFinally resumes the completion parked by the innermost finally block.
// It reports done when the frame returned.
func (vm *VM) endFinally(f *CallFrame) (done bool, err error) {
	r := f.popTry()
	switch r.pending.kind {
	case compThrow:
		return false, realm.NewException(r.pending.value)
	case compReturn:
		return vm.doReturn(f, r.pending.value)
	case compBreak, compContinue:
		return false, vm.jump(f, r.pending.kind, r.pending.target)
	}
	return false, nil
}

// breakTarget finds the scope a break or continue leaves. label is
// scope.NoLabel for unlabelled statements.
func (vm *VM) breakTarget(f *CallFrame, kind completionKind, label int) (*scope.Scope, error) {
	for cur := f.scope; cur != nil; cur = cur.Parent() {
		switch {
		case label != scope.NoLabel:
			if cur.Label() == label {
				return cur, nil
			}
		case kind == compBreak && cur.Is(scope.FlagBreakable):
			return cur, nil
		case kind == compContinue && cur.Is(scope.FlagContinuable):
			return cur, nil
		}
		if cur == f.base {
			break
		}
	}
	return nil, vm.fatalf(f, "no target scope for break or continue")
}

// jump performs break or continue toward target, running intervening
// finally blocks first.
func (vm *VM) jump(f *CallFrame, kind completionKind, target *scope.Scope) error {
	for len(f.tries) > 0 {
		r := &f.tries[len(f.tries)-1]
		if r.scope.Depth() < target.Depth() {
			break
		}
		if r.state != inFinally && r.finallyAddr != bytecode.NoAddr {
			if err := vm.closeScopes(f, r.scope); err != nil {
				return err
			}
			vm.trimRegion(f, r)
			r.state = inFinally
			r.pending = completion{kind: kind, target: target}
			f.ip = r.finallyAddr
			return nil
		}
		f.popTry()
	}
	if err := vm.closeScopes(f, target); err != nil {
		return err
	}
	if kind == compContinue {
		f.ip = target.ContinueAddr
		return nil
	}
	f.scope = target.Parent()
	if err := vm.closeAttached(target); err != nil {
		return err
	}
	f.ip = target.BreakAddr
	return nil
}

// doReturn runs pending finally blocks and closes iterators before the
// frame returns v. It reports done once the frame may return.
func (vm *VM) doReturn(f *CallFrame, v heap.Value) (done bool, err error) {
	for len(f.tries) > 0 {
		r := &f.tries[len(f.tries)-1]
		if r.state != inFinally && r.finallyAddr != bytecode.NoAddr {
			if err := vm.closeScopes(f, r.scope); err != nil {
				return false, err
			}
			vm.trimRegion(f, r)
			r.state = inFinally
			r.pending = completion{kind: compReturn, value: v}
			f.ip = r.finallyAddr
			return false, nil
		}
		f.popTry()
	}
	if err := vm.closeScopes(f, f.base); err != nil {
		return false, err
	}
	f.acc = v
	return true, nil
}
