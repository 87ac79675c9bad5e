package builtins

import (
	"testing"

	"cinder/pkg/heap"
)

func TestWeakStore_KeyHoldsNoCount(t *testing.T) {
	h := heap.New(heap.DefaultOptions())
	s := newWeakStore(h)
	key := h.NewObject(nil)
	val := h.NewObject(nil)
	s.set(heap.ObjectValue(key), heap.ObjectValue(val))

	h.Collect(nil)
	if !key.Freed() {
		t.Fatal("key kept alive by the store")
	}
	if val.Freed() {
		t.Fatal("value freed while its entry is still in the store")
	}

	s.prune()
	if len(s.entries) != 0 {
		t.Fatalf("%d entries after prune, want 0", len(s.entries))
	}
	h.Collect(nil)
	if !val.Freed() {
		t.Error("value of a dead key survived the prune")
	}
}

func TestWeakStore_GrowthPrunesDeadKeys(t *testing.T) {
	h := heap.New(heap.DefaultOptions())
	s := newWeakStore(h)
	var live []*heap.Object
	for i := 0; i < 4; i++ {
		s.set(heap.ObjectValue(h.NewObject(nil)), heap.True)
	}
	h.Collect(nil)
	for i := 0; i < 4; i++ {
		k := h.NewObject(nil)
		h.RetainNode(k)
		live = append(live, k)
		s.set(heap.ObjectValue(k), heap.True)
	}
	if len(s.entries) != len(live) {
		t.Errorf("%d entries, want %d", len(s.entries), len(live))
	}
	for _, k := range live {
		if _, ok := s.get(heap.ObjectValue(k)); !ok {
			t.Error("live key lost by prune")
		}
	}
	if s.set(heap.IntValue(1), heap.True) {
		t.Error("a number was accepted as a weak key")
	}
}
