package scope

import (
	"cinder/pkg/heap"
)

// Declare creates a binding. Var and Function declarations land in the
// nearest var scope and tolerate redeclaration; lexical declarations
// conflict with any existing binding of the same scope.
func (s *Scope) Declare(name string, kind Kind) error {
	target := s
	if kind == Var || (kind == Function && s.flags&FlagBlock == 0) {
		target = s.VarScope()
	}
	if target.IsGlobal() && !kind.lexical() {
		if b := target.own(name); b != nil {
			return heap.SyntaxErrorf("Identifier '%s' has already been declared", name)
		}
		k := heap.StringKey(name)
		if !target.object.HasOwnProperty(k) {
			target.object.DefineOwnProperty(k, heap.DataDesc(heap.Undefined, heap.Writable|heap.Enumerable))
		}
		return nil
	}
	if b := target.own(name); b != nil {
		if kind.lexical() || b.kind.lexical() {
			return heap.SyntaxErrorf("Identifier '%s' has already been declared", name)
		}
		return nil
	}
	if kind.lexical() && target.IsGlobal() && target.object.HasOwnProperty(heap.StringKey(name)) {
		desc, _ := target.object.GetOwnProperty(heap.StringKey(name))
		if !desc.Configurable() {
			return heap.SyntaxErrorf("Identifier '%s' has already been declared", name)
		}
	}
	target.add(name, binding{kind: kind, value: heap.Undefined, initialized: !kind.lexical()})
	return nil
}

// Initialize sets the first value of the nearest binding called name and
// ends its temporal dead zone.
func (s *Scope) Initialize(name string, v heap.Value) error {
	for cur := s; cur != nil; cur = cur.parent {
		if b := cur.own(name); b != nil {
			cur.h.Retain(v)
			cur.h.Release(b.value)
			b.value = v
			b.initialized = true
			return nil
		}
		if cur.IsGlobal() {
			_, err := cur.h.Set(cur.object, heap.StringKey(name), v, heap.ObjectValue(cur.object))
			return err
		}
	}
	return heap.ReferenceErrorf("%s is not defined", name)
}

// Resolve finds the scope that holds name.
func (s *Scope) Resolve(name string) (*Scope, bool) {
	k := heap.StringKey(name)
	for cur := s; cur != nil; cur = cur.parent {
		if cur.own(name) != nil {
			return cur, true
		}
		if cur.object != nil && cur.h.HasProperty(cur.object, k) {
			return cur, true
		}
	}
	return nil, false
}

// Has reports whether name resolves.
func (s *Scope) Has(name string) bool {
	_, ok := s.Resolve(name)
	return ok
}

// Get reads name; an unresolvable name or a binding in its temporal dead
// zone is a ReferenceError.
func (s *Scope) Get(name string) (heap.Value, error) {
	holder, ok := s.Resolve(name)
	if !ok {
		return heap.Undefined, heap.ReferenceErrorf("%s is not defined", name)
	}
	return holder.getOwn(name)
}

// Lookup reads name without failing on unresolvable references; used by
// typeof.
func (s *Scope) Lookup(name string) (heap.Value, bool, error) {
	holder, ok := s.Resolve(name)
	if !ok {
		return heap.Undefined, false, nil
	}
	v, err := holder.getOwn(name)
	return v, true, err
}

func (s *Scope) getOwn(name string) (heap.Value, error) {
	if b := s.own(name); b != nil {
		if !b.initialized {
			return heap.Undefined, heap.ReferenceErrorf("Cannot access '%s' before initialization", name)
		}
		return b.value, nil
	}
	return s.h.Get(s.object, heap.StringKey(name), heap.ObjectValue(s.object))
}

// Set assigns name. Writing a const is a TypeError; writing an
// unresolvable name creates a global property in sloppy code and is a
// ReferenceError in strict code.
func (s *Scope) Set(name string, v heap.Value, strict bool) error {
	holder, ok := s.Resolve(name)
	if !ok {
		if strict {
			return heap.ReferenceErrorf("%s is not defined", name)
		}
		g := s.global()
		_, err := s.h.Set(g.object, heap.StringKey(name), v, heap.ObjectValue(g.object))
		return err
	}
	if b := holder.own(name); b != nil {
		if !b.initialized {
			return heap.ReferenceErrorf("Cannot access '%s' before initialization", name)
		}
		if b.kind == Const {
			return heap.TypeErrorf("Assignment to constant variable.")
		}
		s.h.Retain(v)
		s.h.Release(b.value)
		b.value = v
		return nil
	}
	ok, err := s.h.Set(holder.object, heap.StringKey(name), v, heap.ObjectValue(holder.object))
	if err != nil {
		return err
	}
	if !ok && strict {
		return heap.TypeErrorf("Cannot assign to read only property '%s' of object", name)
	}
	return nil
}

// Delete removes an object-backed binding. Declarative bindings cannot be
// deleted; unresolvable names delete trivially.
func (s *Scope) Delete(name string) bool {
	holder, ok := s.Resolve(name)
	if !ok {
		return true
	}
	if holder.own(name) != nil {
		return false
	}
	return holder.object.Delete(heap.StringKey(name))
}

func (s *Scope) global() *Scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// thisScope is the nearest scope that binds this.
func (s *Scope) thisScope() *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.hasThis {
			return cur
		}
	}
	return nil
}

// This resolves the this binding. In a derived constructor before super()
// returns it is a ReferenceError.
func (s *Scope) This() (heap.Value, error) {
	ts := s.thisScope()
	if ts == nil {
		return heap.Undefined, nil
	}
	if ts.this.IsUninitialized() {
		return heap.Undefined, heap.ReferenceErrorf("Must call super constructor in derived class before accessing 'this' or returning from derived constructor")
	}
	return ts.this, nil
}

// BindThis initialises the this binding of the nearest function scope.
func (s *Scope) BindThis(v heap.Value) error {
	ts := s
	if s.flags&FlagGlobal == 0 {
		ts = s.thisScope()
	}
	if ts == nil {
		return heap.ReferenceErrorf("'this' is not bindable here")
	}
	if ts.hasThis && ts.callee != nil && !ts.this.IsUninitialized() {
		return heap.ReferenceErrorf("Super constructor may only be called once")
	}
	ts.h.Retain(v)
	ts.h.Release(ts.this)
	ts.this = v
	ts.hasThis = true
	return nil
}

// SetFunction records the callee metadata of a function scope. this may be
// heap.Uninitialized for derived constructors.
func (s *Scope) SetFunction(callee *heap.Object, this, newTarget heap.Value, home *heap.Object) {
	s.hasThis = true
	s.h.Retain(this)
	s.this = this
	s.h.Retain(newTarget)
	s.newTarget = newTarget
	if callee != nil {
		s.h.RetainNode(callee)
		s.callee = callee
	}
	if home != nil {
		s.h.RetainNode(home)
		s.home = home
	}
}

// SetHome records the home object of an arrow-free method scope without
// binding this; used for class field initialisers.
func (s *Scope) SetHome(home *heap.Object) {
	if home != nil {
		s.h.RetainNode(home)
	}
	if s.home != nil {
		s.h.ReleaseNode(s.home)
	}
	s.home = home
}

// NewTarget is new.target of the enclosing non-arrow function.
func (s *Scope) NewTarget() heap.Value {
	if ts := s.thisScope(); ts != nil {
		return ts.newTarget
	}
	return heap.Undefined
}

// Callee is the enclosing non-arrow function object.
func (s *Scope) Callee() *heap.Object {
	if ts := s.thisScope(); ts != nil {
		return ts.callee
	}
	return nil
}

// HomeObject is the object whose prototype super references resolve
// against.
func (s *Scope) HomeObject() *heap.Object {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.home != nil {
			return cur.home
		}
		if cur.hasThis {
			return nil
		}
	}
	return nil
}
