package scope

import (
	"errors"
	"testing"

	"cinder/pkg/heap"
)

func newGlobal(t *testing.T) (*heap.Heap, *Scope) {
	t.Helper()
	h := heap.New(heap.DefaultOptions())
	g := h.NewObjectOf("global", nil, nil)
	return h, NewGlobal(h, g)
}

func guestName(err error) string {
	var ge *heap.GuestError
	if errors.As(err, &ge) {
		return ge.Name
	}
	return ""
}

func TestScope_LetIsInTemporalDeadZone(t *testing.T) {
	h, g := newGlobal(t)
	s := New(h, g, FlagBlock)
	if err := s.Declare("x", Let); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("x"); guestName(err) != "ReferenceError" {
		t.Fatalf("read before init: %v", err)
	}
	if err := s.Set("x", heap.IntValue(1), false); guestName(err) != "ReferenceError" {
		t.Fatalf("write before init: %v", err)
	}
	if err := s.Initialize("x", heap.IntValue(2)); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get("x")
	if err != nil || v.AsNumber() != 2 {
		t.Errorf("x = %s, %v", v.Inspect(), err)
	}
}

func TestScope_ConstAssignment(t *testing.T) {
	h, g := newGlobal(t)
	s := New(h, g, FlagBlock)
	s.Declare("c", Const)
	s.Initialize("c", heap.IntValue(1))
	if err := s.Set("c", heap.IntValue(2), false); guestName(err) != "TypeError" {
		t.Errorf("const write: %v", err)
	}
}

func TestScope_LexicalRedeclaration(t *testing.T) {
	h, g := newGlobal(t)
	s := New(h, g, FlagBlock)
	if err := s.Declare("a", Let); err != nil {
		t.Fatal(err)
	}
	if err := s.Declare("a", Let); guestName(err) != "SyntaxError" {
		t.Errorf("duplicate let: %v", err)
	}
	fn := New(h, g, FlagFunction)
	fn.Declare("v", Var)
	if err := fn.Declare("v", Var); err != nil {
		t.Errorf("var redeclaration must be allowed: %v", err)
	}
}

func TestScope_VarHoistsToFunctionScope(t *testing.T) {
	h, g := newGlobal(t)
	fn := New(h, g, FlagFunction)
	block := New(h, fn, FlagBlock)
	block.Declare("v", Var)
	if holder, ok := block.Resolve("v"); !ok || holder != fn {
		t.Errorf("var declared in %v, want function scope", holder)
	}
}

func TestScope_GlobalVarIsGlobalObjectProperty(t *testing.T) {
	_, g := newGlobal(t)
	g.Declare("answer", Var)
	g.Set("answer", heap.IntValue(42), true)
	v, ok := g.Object().FindData("answer")
	if !ok || v.AsNumber() != 42 {
		t.Errorf("global property = %s", v.Inspect())
	}
	if g.Delete("answer") {
		t.Error("var-declared global must not be deletable")
	}
}

func TestScope_SloppyAndStrictUnresolvedWrites(t *testing.T) {
	h, g := newGlobal(t)
	s := New(h, g, FlagFunction)
	if err := s.Set("implicit", heap.True, false); err != nil {
		t.Fatal(err)
	}
	if !g.Object().HasOwnProperty(heap.StringKey("implicit")) {
		t.Error("sloppy write must create a global property")
	}
	if err := s.Set("nope", heap.True, true); guestName(err) != "ReferenceError" {
		t.Errorf("strict write: %v", err)
	}
	if _, err := s.Get("missing"); guestName(err) != "ReferenceError" {
		t.Errorf("read of undeclared name: %v", err)
	}
}

func TestScope_WithResolvesThroughObject(t *testing.T) {
	h, g := newGlobal(t)
	outer := New(h, g, FlagFunction)
	outer.Declare("x", Var)
	outer.Set("x", heap.IntValue(1), true)

	obj := h.NewObject(nil)
	obj.Put("x", heap.IntValue(2))
	w := outer.PushWith(obj)
	v, _ := w.Get("x")
	if v.AsNumber() != 2 {
		t.Errorf("with lookup = %s, want 2", v.Inspect())
	}
	w.Set("x", heap.IntValue(3), false)
	if got, _ := obj.FindData("x"); got.AsNumber() != 3 {
		t.Errorf("with write went to %s", got.Inspect())
	}
	obj.Delete(heap.StringKey("x"))
	v, _ = w.Get("x")
	if v.AsNumber() != 1 {
		t.Errorf("fallback lookup = %s, want 1", v.Inspect())
	}
}

func TestScope_Labels(t *testing.T) {
	h, g := newGlobal(t)
	fn := New(h, g, FlagFunction)
	loop := New(h, fn, FlagLoop|FlagBreakable)
	loop.SetBreakable(7, 10, 20)
	inner := New(h, loop, FlagBlock)
	depth, ok := inner.LookupLabel(7)
	if !ok || depth != 1 {
		t.Errorf("LookupLabel = %d, %v", depth, ok)
	}
	nested := New(h, inner, FlagFunction)
	if _, ok := nested.LookupLabel(7); ok {
		t.Error("labels must not be visible across a function boundary")
	}
}

func TestScope_DerivedThis(t *testing.T) {
	h, g := newGlobal(t)
	callee := h.NewObject(nil)
	fn := New(h, g, FlagFunction)
	fn.SetFunction(callee, heap.Uninitialized, heap.ObjectValue(callee), nil)
	arrow := New(h, fn, FlagFunction|FlagArrow)
	if _, err := arrow.This(); guestName(err) != "ReferenceError" {
		t.Fatalf("this before super: %v", err)
	}
	self := h.NewObject(nil)
	if err := arrow.BindThis(heap.ObjectValue(self)); err != nil {
		t.Fatal(err)
	}
	v, err := arrow.This()
	if err != nil || v.AsObject() != self {
		t.Errorf("this = %s, %v", v.Inspect(), err)
	}
	if err := fn.BindThis(heap.ObjectValue(self)); guestName(err) != "ReferenceError" {
		t.Errorf("second super call: %v", err)
	}
}

func TestScope_RenewCopiesBindings(t *testing.T) {
	h, g := newGlobal(t)
	loop := New(h, g, FlagLoop)
	loop.Declare("i", Let)
	loop.Initialize("i", heap.IntValue(0))
	next := loop.Renew()
	next.Set("i", heap.IntValue(1), true)
	a, _ := loop.Get("i")
	b, _ := next.Get("i")
	if a.AsNumber() != 0 || b.AsNumber() != 1 {
		t.Errorf("renewed scope shares bindings: %s %s", a.Inspect(), b.Inspect())
	}
}

func TestScope_ClosureCycleIsCollected(t *testing.T) {
	h, g := newGlobal(t)
	h.RetainNode(g)
	fn := New(h, g, FlagFunction)
	obj := h.NewObject(nil)
	fn.Declare("self", Var)
	fn.Set("self", heap.ObjectValue(obj), true)
	// obj -> fn scope -> obj
	obj.Internal = scopeRef{fn}
	h.RetainNode(fn)

	h.Collect(func(visit func(heap.Node)) { visit(obj) })
	if !h.IsLive(fn) {
		t.Fatal("rooted cycle freed")
	}
	h.Collect(nil)
	if h.IsLive(fn) || h.IsLive(obj) {
		t.Error("scope/object cycle survived")
	}
	if !h.IsLive(g) {
		t.Error("global scope freed")
	}
}

type scopeRef struct{ s *Scope }

func (r scopeRef) EachRef(visit func(heap.Node)) { visit(r.s) }
