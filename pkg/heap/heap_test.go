package heap

import "testing"

func TestHeap_NewObjectStartsInZeroCountTable(t *testing.T) {
	h := New(DefaultOptions())
	o := h.NewObject(nil)
	if o.RefCount() != 0 {
		t.Errorf("expected count 0, got %d", o.RefCount())
	}
	if !h.IsLive(o) {
		t.Fatal("object should be live before collection")
	}
	stats := h.Collect(nil)
	if stats.FreedZeroCount != 1 {
		t.Errorf("expected 1 zero-count node freed, got %d", stats.FreedZeroCount)
	}
	if h.IsLive(o) || !o.Freed() {
		t.Error("unreferenced object should be freed")
	}
}

func TestHeap_RootsProtectZeroCountNodes(t *testing.T) {
	h := New(DefaultOptions())
	o := h.NewObject(nil)
	child := h.NewObject(nil)
	o.Put("child", ObjectValue(child))

	roots := func(visit func(Node)) { visit(o) }
	h.Collect(roots)
	if !h.IsLive(o) || !h.IsLive(child) {
		t.Fatal("rooted objects must survive")
	}
	if o.RefCount() != 0 {
		t.Errorf("root count must be restored, got %d", o.RefCount())
	}
	if child.RefCount() != 1 {
		t.Errorf("child count = %d, want 1", child.RefCount())
	}

	h.Collect(nil)
	if h.IsLive(o) || h.IsLive(child) {
		t.Error("objects should be freed once unrooted")
	}
}

func TestHeap_PinnedObjectsSurvive(t *testing.T) {
	h := New(DefaultOptions())
	o := h.NewObject(nil)
	h.Retain(ObjectValue(o))
	h.Collect(nil)
	if !h.IsLive(o) {
		t.Fatal("pinned object freed")
	}
	h.Release(ObjectValue(o))
	h.Collect(nil)
	if h.IsLive(o) {
		t.Error("object should be freed after unpin")
	}
}

func TestHeap_SelfCycleCollected(t *testing.T) {
	h := New(DefaultOptions())
	holder := h.NewObject(nil)
	h.Retain(ObjectValue(holder))

	o := h.NewObject(nil)
	holder.Put("o", ObjectValue(o))
	o.Put("self", ObjectValue(o))
	if o.RefCount() != 2 {
		t.Fatalf("count = %d, want 2", o.RefCount())
	}

	holder.Put("o", Null)
	if o.RefCount() != 1 {
		t.Fatalf("count = %d, want 1 after dropping external reference", o.RefCount())
	}
	stats := h.Collect(nil)
	if stats.FreedCycles != 1 {
		t.Errorf("FreedCycles = %d, want 1", stats.FreedCycles)
	}
	if h.IsLive(o) {
		t.Error("self-referencing object should be collected")
	}
	if !h.IsLive(holder) {
		t.Error("holder must survive")
	}
}

func TestHeap_RingOfNObjectsCollected(t *testing.T) {
	for _, n := range []int{2, 3, 10, 100} {
		h := New(Options{SuspectThreshold: 4})
		holder := h.NewObject(nil)
		h.Retain(ObjectValue(holder))

		nodes := make([]*Object, n)
		for i := range nodes {
			nodes[i] = h.NewObject(nil)
		}
		for i, o := range nodes {
			o.Put("next", ObjectValue(nodes[(i+1)%n]))
		}
		holder.Put("head", ObjectValue(nodes[0]))
		h.Collect(nil)
		for _, o := range nodes {
			if !h.IsLive(o) {
				t.Fatalf("n=%d: reachable ring member freed", n)
			}
		}

		holder.Put("head", Undefined)
		h.Collect(nil)
		for i, o := range nodes {
			if h.IsLive(o) {
				t.Errorf("n=%d: ring member %d still live", n, i)
			}
		}
	}
}

func TestHeap_CycleHeldByRootSurvives(t *testing.T) {
	h := New(DefaultOptions())
	a := h.NewObject(nil)
	b := h.NewObject(nil)
	a.Put("b", ObjectValue(b))
	b.Put("a", ObjectValue(a))
	// give a an external holder, then drop it so a becomes a suspect
	holder := h.NewObject(nil)
	h.Retain(ObjectValue(holder))
	holder.Put("a", ObjectValue(a))
	holder.Put("a", Undefined)

	h.Collect(func(visit func(Node)) { visit(b) })
	if !h.IsLive(a) || !h.IsLive(b) {
		t.Fatal("cycle reachable from a register root was freed")
	}
	if a.RefCount() != 1 || b.RefCount() != 1 {
		t.Errorf("counts not restored: a=%d b=%d", a.RefCount(), b.RefCount())
	}
}

func TestHeap_CycleWithExternalChild(t *testing.T) {
	h := New(DefaultOptions())
	keep := h.NewObject(nil)
	h.Retain(ObjectValue(keep))

	a := h.NewObject(nil)
	b := h.NewObject(nil)
	a.Put("b", ObjectValue(b))
	b.Put("a", ObjectValue(a))
	b.Put("keep", ObjectValue(keep))
	h.Retain(ObjectValue(a))
	h.Release(ObjectValue(a))

	h.Collect(nil)
	if h.IsLive(a) || h.IsLive(b) {
		t.Error("garbage cycle survived")
	}
	if !h.IsLive(keep) || keep.RefCount() != 1 {
		t.Errorf("external child damaged: live=%v count=%d", h.IsLive(keep), keep.RefCount())
	}
}

func TestHeap_PrototypeEdgesCounted(t *testing.T) {
	h := New(DefaultOptions())
	proto := h.NewObject(nil)
	o := h.NewObject(proto)
	if proto.RefCount() != 1 {
		t.Fatalf("proto count = %d", proto.RefCount())
	}
	o.SetPrototypeOf(nil)
	if proto.RefCount() != 0 {
		t.Errorf("proto count = %d after unlink", proto.RefCount())
	}
}

func TestHeap_NeedsCollectionAndStats(t *testing.T) {
	h := New(Options{SuspectThreshold: 2})
	holder := h.NewObject(nil)
	h.Retain(ObjectValue(holder))
	for i := 0; i < 3; i++ {
		o := h.NewObject(nil)
		holder.Put("x", ObjectValue(o))
		o.Put("self", ObjectValue(o))
	}
	holder.Put("x", Undefined)
	if !h.NeedsCollection() {
		t.Error("expected NeedsCollection after suspects accumulated")
	}
	h.Collect(nil)
	s := h.Stats()
	if s.Live != 1 {
		t.Errorf("Live = %d, want 1", s.Live)
	}
	if s.Collections != 1 || s.CyclesFreed != 3 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestHeap_MaxObjects(t *testing.T) {
	h := New(Options{MaxObjects: 2})
	h.NewObject(nil)
	h.NewObject(nil)
	if h.Exhausted() {
		t.Fatal("exhausted too early")
	}
	h.NewObject(nil)
	if !h.Exhausted() {
		t.Error("expected exhaustion")
	}
}

func TestHeap_OnTrackSeesEveryAllocation(t *testing.T) {
	h := New(DefaultOptions())
	var seen []Node
	h.OnTrack(func(n Node) { seen = append(seen, n) })
	o := h.NewObject(nil)
	a := h.NewArray(nil, nil)
	if len(seen) != 2 || seen[0] != Node(o) || seen[1] != Node(a) {
		t.Fatalf("tracked %v", seen)
	}
	stats := h.Collect(func(visit func(Node)) {
		for _, n := range seen {
			visit(n)
		}
	})
	if stats.FreedZeroCount != 0 || !h.IsLive(o) || !h.IsLive(a) {
		t.Errorf("rooted allocations were freed: %+v", stats)
	}
}
