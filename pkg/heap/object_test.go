package heap

import (
	"reflect"
	"testing"
)

// goFunc is a minimal callable used to exercise accessors.
type goFunc struct {
	name string
	fn   func(this Value, args []Value) (Value, error)
}

func (g *goFunc) EachRef(func(Node))   {}
func (g *goFunc) FunctionName() string { return g.name }
func (g *goFunc) IsConstructor() bool  { return false }

type goInvoker struct{}

func (goInvoker) Call(fn *Object, this Value, args []Value) (Value, error) {
	return fn.Internal.(*goFunc).fn(this, args)
}

func newTestHeap() *Heap {
	h := New(DefaultOptions())
	h.SetInvoker(goInvoker{})
	return h
}

func TestObject_PropertyRoundTrip(t *testing.T) {
	h := newTestHeap()
	values := []Value{
		NumberValue(1.5), NewString("x"), True, Null, Undefined,
		ObjectValue(h.NewObject(nil)), NewSymbol("s"),
	}
	for _, v := range values {
		o := h.NewObject(nil)
		k := StringKey("k")
		if !o.DefineOwnProperty(k, DataDesc(v, DefaultFlags)) {
			t.Fatalf("define failed for %s", v.Inspect())
		}
		got, err := h.Get(o, k, ObjectValue(o))
		if err != nil {
			t.Fatal(err)
		}
		if !StrictEquals(got, v) {
			t.Errorf("read %s, want %s", got.Inspect(), v.Inspect())
		}
	}
}

func TestObject_PrototypeChainGet(t *testing.T) {
	h := newTestHeap()
	proto := h.NewObject(nil)
	proto.Put("inherited", IntValue(7))
	o := h.NewObject(proto)
	v, _ := h.Get(o, StringKey("inherited"), ObjectValue(o))
	if v.AsNumber() != 7 {
		t.Errorf("inherited = %s", v.Inspect())
	}
	v, _ = h.Get(o, StringKey("missing"), ObjectValue(o))
	if !v.IsUndefined() {
		t.Errorf("missing = %s, want undefined", v.Inspect())
	}
}

func TestObject_AccessorsUseReceiver(t *testing.T) {
	h := newTestHeap()
	var stored Value
	getter := h.NewObjectOf("Function", nil, &goFunc{name: "get", fn: func(this Value, _ []Value) (Value, error) {
		v, _ := this.AsObject().FindData("tag")
		return v, nil
	}})
	setter := h.NewObjectOf("Function", nil, &goFunc{name: "set", fn: func(this Value, args []Value) (Value, error) {
		stored = args[0]
		return Undefined, nil
	}})
	proto := h.NewObject(nil)
	proto.DefineAccessor(StringKey("x"), getter, setter)

	o := h.NewObject(proto)
	o.Put("tag", NewString("child"))
	v, err := h.Get(o, StringKey("x"), ObjectValue(o))
	if err != nil || v.AsString() != "child" {
		t.Errorf("getter result = %s, %v", v.Inspect(), err)
	}
	ok, err := h.Set(o, StringKey("x"), IntValue(3), ObjectValue(o))
	if !ok || err != nil {
		t.Fatalf("set through setter failed: %v %v", ok, err)
	}
	if stored.AsNumber() != 3 {
		t.Errorf("setter received %s", stored.Inspect())
	}
	if o.HasOwnProperty(StringKey("x")) {
		t.Error("setter write must not create an own property")
	}
}

func TestObject_InheritedReadOnlyRejectsWrite(t *testing.T) {
	h := newTestHeap()
	proto := h.NewObject(nil)
	proto.DefineReadOnly("k", IntValue(1))
	o := h.NewObject(proto)
	ok, _ := h.Set(o, StringKey("k"), IntValue(2), ObjectValue(o))
	if ok {
		t.Error("write over inherited read-only property must be rejected")
	}
}

func TestObject_FreezeRejectsWrites(t *testing.T) {
	h := newTestHeap()
	o := h.NewObject(nil)
	o.Put("a", IntValue(1))
	o.Freeze()
	ok, _ := h.Set(o, StringKey("a"), IntValue(2), ObjectValue(o))
	if ok {
		t.Error("write to frozen property succeeded")
	}
	ok, _ = h.Set(o, StringKey("b"), IntValue(2), ObjectValue(o))
	if ok {
		t.Error("add to frozen object succeeded")
	}
	if o.Delete(StringKey("a")) {
		t.Error("delete from frozen object succeeded")
	}
	if !o.TestIntegrity(true) {
		t.Error("TestIntegrity(frozen) = false")
	}
}

func TestObject_NonConfigurableRedefine(t *testing.T) {
	h := newTestHeap()
	o := h.NewObject(nil)
	o.DefineOwnProperty(StringKey("c"), DataDesc(IntValue(1), Writable))
	if o.DefineOwnProperty(StringKey("c"), DataDesc(IntValue(1), DefaultFlags)) {
		t.Error("making a non-configurable property configurable must fail")
	}
	if !o.DefineOwnProperty(StringKey("c"), Descriptor{Value: IntValue(5), Has: HasValue}) {
		t.Error("changing the value of a writable non-configurable property must succeed")
	}
}

func TestObject_OwnKeysOrder(t *testing.T) {
	h := newTestHeap()
	sym := NewSymbolIdentity("s")
	o := h.NewObject(nil)
	o.Put("b", True)
	o.Put("2", True)
	o.SetOwn(SymbolKey(sym), True)
	o.Put("a", True)
	o.Put("0", True)
	var names []string
	for _, k := range o.OwnKeys() {
		names = append(names, k.String())
	}
	want := []string{"0", "2", "b", "a", "[s]"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("OwnKeys = %v, want %v", names, want)
	}
}

func TestObject_ArrayLength(t *testing.T) {
	h := newTestHeap()
	a := h.NewArray(nil, []Value{IntValue(1), IntValue(2), IntValue(3)})
	child := h.NewObject(nil)
	a.Append(ObjectValue(child))
	if a.Len() != 4 || child.RefCount() != 1 {
		t.Fatalf("len=%d count=%d", a.Len(), child.RefCount())
	}
	ok, err := h.Set(a, StringKey("length"), IntValue(1), ObjectValue(a))
	if !ok || err != nil {
		t.Fatalf("set length: %v %v", ok, err)
	}
	if a.Len() != 1 || child.RefCount() != 0 {
		t.Errorf("truncate: len=%d count=%d", a.Len(), child.RefCount())
	}
	ok, _ = h.Set(a, IndexKey(5), IntValue(9), ObjectValue(a))
	if !ok || a.Len() != 6 {
		t.Errorf("sparse write: ok=%v len=%d", ok, a.Len())
	}
	if a.HasOwnProperty(IndexKey(3)) {
		t.Error("hole reported as own property")
	}
	if got := ObjectValue(a).Inspect(); got != "[1, <4 empty items>, 9]" {
		t.Errorf("Inspect = %q", got)
	}
}

func TestObject_StringBox(t *testing.T) {
	h := newTestHeap()
	s := h.NewObjectOf("String", nil, &PrimitiveBox{Value: NewString("héllo")})
	v, _ := h.Get(s, StringKey("length"), ObjectValue(s))
	if v.AsNumber() != 5 {
		t.Errorf("length = %s", v.Inspect())
	}
	v, _ = h.Get(s, IndexKey(1), ObjectValue(s))
	if v.AsString() != "é" {
		t.Errorf("[1] = %s", v.Inspect())
	}
	if s.Delete(IndexKey(0)) {
		t.Error("string index must not be deletable")
	}
}

func TestObject_PrivateElements(t *testing.T) {
	h := newTestHeap()
	name := NewSymbolIdentity("#x")
	o := h.NewObject(nil)
	if !o.DefinePrivate(name, IntValue(1), false) {
		t.Fatal("define private failed")
	}
	if o.DefinePrivate(name, IntValue(2), false) {
		t.Error("duplicate private definition must fail")
	}
	if _, writable, ok := o.SetPrivate(name, IntValue(3)); !ok || !writable {
		t.Error("set private failed")
	}
	v, _, _, ok := o.GetPrivate(name)
	if !ok || v.AsNumber() != 3 {
		t.Errorf("private = %s", v.Inspect())
	}
	for _, k := range o.OwnKeys() {
		if k.Symbol() == name {
			t.Error("private name leaked into OwnKeys")
		}
	}
}

func TestObject_SetPrototypeCycle(t *testing.T) {
	h := newTestHeap()
	a := h.NewObject(nil)
	b := h.NewObject(a)
	if a.SetPrototypeOf(b) {
		t.Error("prototype cycle accepted")
	}
	a.PreventExtensions()
	if a.SetPrototypeOf(h.NewObject(nil)) {
		t.Error("non-extensible object accepted new prototype")
	}
}

func TestValue_InspectPrimitives(t *testing.T) {
	h := newTestHeap()
	arr := h.NewArray(nil, []Value{False, NewString("s"), Null})
	tests := []struct {
		v    Value
		want string
	}{
		{True, "true"},
		{False, "false"},
		{BooleanValue(1 < 2), "true"},
		{NewString("raw"), "raw"},
		{Undefined, "undefined"},
		{Null, "null"},
		{ObjectValue(arr), `[false, "s", null]`},
	}
	for _, tc := range tests {
		if got := tc.v.Inspect(); got != tc.want {
			t.Errorf("Inspect = %q, want %q", got, tc.want)
		}
	}
}
