package realm

import (
	"errors"
	"testing"

	"cinder/pkg/heap"
)

func TestRealm_GlobalThis(t *testing.T) {
	r := New(Options{})
	v, ok := r.GlobalObject.FindData("globalThis")
	if !ok || v.AsObject() != r.GlobalObject {
		t.Fatalf("globalThis = %s", v.Inspect())
	}
	this, err := r.GlobalScope.This()
	if err != nil || this.AsObject() != r.GlobalObject {
		t.Errorf("global this = %s, %v", this.Inspect(), err)
	}
	if r.ID == "" {
		t.Error("realm has no ID")
	}
}

func TestRealm_IntrinsicsFreeze(t *testing.T) {
	r := New(Options{})
	if err := r.Intrinsics.Set("Extra", r.NewObject()); err != nil {
		t.Fatal(err)
	}
	r.Intrinsics.Freeze()
	if err := r.Intrinsics.Set("Late", r.NewObject()); err == nil {
		t.Error("frozen table accepted a new intrinsic")
	}
	if r.Intrinsic("Extra") == nil {
		t.Error("registered intrinsic missing")
	}
}

func TestRealm_IntrinsicsSurviveCollection(t *testing.T) {
	r := New(Options{})
	r.Collect()
	if !r.Heap.IsLive(r.Intrinsic(ObjectPrototype)) || !r.Heap.IsLive(r.GlobalObject) {
		t.Error("realm roots were collected")
	}
}

func TestRealm_ToObject(t *testing.T) {
	r := New(Options{})
	if _, err := r.ToObject(heap.Undefined); err == nil {
		t.Error("ToObject(undefined) must throw")
	}
	o, err := r.ToObject(heap.NewString("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if o.Class() != "String" {
		t.Errorf("class = %s", o.Class())
	}
	if p, ok := o.PrimitiveValue(); !ok || p.AsString() != "abc" {
		t.Errorf("boxed value = %s", p.Inspect())
	}
}

func TestRealm_ToException(t *testing.T) {
	r := New(Options{})
	ex, ok := r.ToException(heap.TypeErrorf("x is not a function"))
	if !ok {
		t.Fatal("guest error not converted")
	}
	_, msg := ErrorParts(ex.Value)
	if msg != "x is not a function" {
		t.Errorf("message = %q", msg)
	}
	if _, ok := r.ToException(errors.New("disk on fire")); ok {
		t.Error("host error converted to a guest exception")
	}
}

func TestRealm_MicrotasksRunInOrder(t *testing.T) {
	r := New(Options{})
	var order []int
	r.EnqueueMicrotask(func() error {
		order = append(order, 1)
		r.EnqueueMicrotask(func() error { order = append(order, 3); return nil })
		return nil
	})
	r.EnqueueMicrotask(func() error { order = append(order, 2); return nil })
	if err := r.DrainMicrotasks(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v", order)
	}
}

func TestRealm_MicrotaskPinsKeepValuesAlive(t *testing.T) {
	r := New(Options{})
	o := r.NewObject()
	r.EnqueueMicrotask(func() error { return nil }, heap.ObjectValue(o))
	r.Heap.Collect(nil)
	if !r.Heap.IsLive(o) {
		t.Fatal("pinned value freed before its job ran")
	}
	r.DrainMicrotasks()
	r.Heap.Collect(nil)
	if r.Heap.IsLive(o) {
		t.Error("value still live after its job ran")
	}
}

func TestRealm_RequireCachesAndHandlesCycles(t *testing.T) {
	r := New(Options{})
	sources := map[string]string{"./a": "/a.js", "./b": "/b.js"}
	evaluated := map[string]int{}
	r.Hooks.ResolveModule = func(spec, referrer string) (string, string, error) {
		p, ok := sources[spec]
		if !ok {
			return "", "", errors.New("not found")
		}
		return p, "", nil
	}
	r.Hooks.EvaluateModule = func(rec *ModuleRecord, _ string) error {
		evaluated[rec.Path]++
		exports := rec.Exports().AsObject()
		exports.Put("name", heap.NewString(rec.Path))
		if rec.Path == "/a.js" {
			// b requires a back while a is still evaluating
			if _, err := r.Require("./b", rec.Path); err != nil {
				return err
			}
		} else {
			back, err := r.Require("./a", rec.Path)
			if err != nil {
				return err
			}
			if n, _ := back.AsObject().FindData("name"); n.AsString() != "/a.js" {
				t.Errorf("partial exports of a = %s", back.Inspect())
			}
		}
		return nil
	}
	if _, err := r.Require("./a", "/main.js"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Require("./a", "/main.js"); err != nil {
		t.Fatal(err)
	}
	if evaluated["/a.js"] != 1 || evaluated["/b.js"] != 1 {
		t.Errorf("evaluation counts = %v", evaluated)
	}
	if r.Module("/a.js").State != ModuleEvaluated {
		t.Errorf("state = %s", r.Module("/a.js").State)
	}
	if _, err := r.Require("./missing", "/main.js"); err == nil {
		t.Error("missing module resolved")
	}
}
