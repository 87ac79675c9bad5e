package compiler

import (
	"testing"
)

func TestNewRegisterAllocator(t *testing.T) {
	ra := NewRegisterAllocator()

	if ra.nextReg != 0 {
		t.Errorf("Expected nextReg to be 0, got %d", ra.nextReg)
	}
	if ra.MaxRegs() != 0 {
		t.Errorf("Expected MaxRegs to be 0, got %d", ra.MaxRegs())
	}
	if len(ra.freeRegs) != 0 {
		t.Errorf("Expected empty free list, got %v", ra.freeRegs)
	}
}

func mustAlloc(t *testing.T, ra *RegisterAllocator) Register {
	t.Helper()
	r, ok := ra.Alloc()
	if !ok {
		t.Fatalf("allocation failed with %d live registers", ra.Live())
	}
	return r
}

func TestBasicAllocation(t *testing.T) {
	ra := NewRegisterAllocator()
	for want := Register(0); want < 3; want++ {
		if got := mustAlloc(t, ra); got != want {
			t.Errorf("Expected register %d, got %d", want, got)
		}
	}
	if ra.MaxRegs() != 3 {
		t.Errorf("Expected MaxRegs 3, got %d", ra.MaxRegs())
	}
}

func TestAllocHinted(t *testing.T) {
	ra := NewRegisterAllocator()

	reg1, _ := ra.AllocHinted(NoHint)
	if reg1 != 0 {
		t.Errorf("Expected NoHint to allocate register 0, got %d", reg1)
	}
	reg2, _ := ra.AllocHinted(5)
	if reg2 != 5 {
		t.Errorf("Expected hinted register 5, got %d", reg2)
	}
	// R5 is taken; registers 1-4 were put on the free list by the hint.
	reg3, _ := ra.AllocHinted(5)
	if reg3 == 5 {
		t.Errorf("Expected hint 5 to be rejected")
	}
	if reg3 < 1 || reg3 > 4 {
		t.Errorf("Expected a skipped register, got %d", reg3)
	}
}

func TestFreeReuse(t *testing.T) {
	ra := NewRegisterAllocator()
	_ = mustAlloc(t, ra)
	r1 := mustAlloc(t, ra)
	_ = mustAlloc(t, ra)

	ra.Free(r1)
	if got := mustAlloc(t, ra); got != r1 {
		t.Errorf("Expected freed register %d to be reused, got %d", r1, got)
	}
}

func TestFreeTailShrinks(t *testing.T) {
	ra := NewRegisterAllocator()
	r0 := mustAlloc(t, ra)
	r1 := mustAlloc(t, ra)
	r2 := mustAlloc(t, ra)
	ra.Free(r1)
	ra.Free(r2)
	if ra.Live() != 1 {
		t.Errorf("Expected 1 live register, got %d", ra.Live())
	}
	if ra.nextReg != r0+1 {
		t.Errorf("Expected trailing free registers to fold back, nextReg=%d", ra.nextReg)
	}
	if ra.MaxRegs() != 3 {
		t.Errorf("MaxRegs must keep the high-water mark, got %d", ra.MaxRegs())
	}
}

func TestPinnedRegisterSurvivesFree(t *testing.T) {
	ra := NewRegisterAllocator()
	r := mustAlloc(t, ra)
	ra.Pin(r)
	ra.Free(r)
	if !ra.IsPinned(r) {
		t.Fatalf("register %d should still be pinned", r)
	}
	if got := mustAlloc(t, ra); got == r {
		t.Errorf("pinned register %d was handed out again", r)
	}
	ra.Unpin(r)
	ra.Free(r)
	if ra.IsPinned(r) {
		t.Errorf("register %d should be unpinned", r)
	}
}

func TestExhaustionLeavesSpillRegister(t *testing.T) {
	ra := NewRegisterAllocator()
	for i := 0; i < int(spillRegister); i++ {
		mustAlloc(t, ra)
	}
	if r, ok := ra.Alloc(); ok {
		t.Fatalf("expected exhaustion, got R%d", r)
	}
	if _, ok := ra.AllocHinted(spillRegister); ok {
		t.Errorf("the spill register must never be allocated")
	}
}
