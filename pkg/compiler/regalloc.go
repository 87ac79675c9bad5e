package compiler

import (
	"cinder/pkg/bytecode"
)

// Register is a frame register index.
type Register uint8

// NoHint asks the allocator for any free register.
const NoHint Register = 255

// spillRegister is only ever live between a PopReg and the instruction
// that consumes it.
const spillRegister = Register(bytecode.SpillRegister)

// RegisterAllocator hands out the general-purpose registers of one
// function. Freed registers are reused in LIFO order.
type RegisterAllocator struct {
	nextReg    Register
	maxReg     Register
	used       bool
	freeRegs   []Register
	pinnedRegs map[Register]bool
}

// NewRegisterAllocator creates an allocator for a function body.
func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{
		freeRegs:   make([]Register, 0, 8),
		pinnedRegs: make(map[Register]bool),
	}
}

// Alloc returns a free register, or false when every general register is
// live.
func (ra *RegisterAllocator) Alloc() (Register, bool) {
	var reg Register
	if n := len(ra.freeRegs); n > 0 {
		reg = ra.freeRegs[n-1]
		ra.freeRegs = ra.freeRegs[:n-1]
	} else {
		if ra.nextReg >= spillRegister {
			log.Debugf("register file exhausted (%d live)", ra.nextReg)
			return 0, false
		}
		reg = ra.nextReg
		ra.nextReg++
	}
	if reg > ra.maxReg || !ra.used {
		ra.maxReg = reg
	}
	ra.used = true
	return reg, true
}

// AllocHinted prefers hint when it is free.
func (ra *RegisterAllocator) AllocHinted(hint Register) (Register, bool) {
	if hint != NoHint && hint < spillRegister && ra.isAvailable(hint) {
		ra.reserve(hint)
		return hint, true
	}
	return ra.Alloc()
}

// Free returns reg to the pool. Pinned registers stay allocated.
func (ra *RegisterAllocator) Free(reg Register) {
	if reg >= spillRegister || ra.pinnedRegs[reg] {
		return
	}
	for _, r := range ra.freeRegs {
		if r == reg {
			return
		}
	}
	if reg == ra.nextReg-1 {
		ra.nextReg--
		// fold trailing free registers back into the tail
		for ra.nextReg > 0 && ra.removeFree(ra.nextReg-1) {
			ra.nextReg--
		}
		return
	}
	ra.freeRegs = append(ra.freeRegs, reg)
}

// Pin keeps reg allocated across Free calls.
func (ra *RegisterAllocator) Pin(reg Register) { ra.pinnedRegs[reg] = true }

// Unpin releases a pin; the register still has to be freed.
func (ra *RegisterAllocator) Unpin(reg Register) { delete(ra.pinnedRegs, reg) }

// IsPinned reports whether reg is pinned.
func (ra *RegisterAllocator) IsPinned(reg Register) bool { return ra.pinnedRegs[reg] }

// MaxRegs is the number of registers the function needs.
func (ra *RegisterAllocator) MaxRegs() int {
	if !ra.used {
		return 0
	}
	return int(ra.maxReg) + 1
}

// Live is the number of registers currently allocated.
func (ra *RegisterAllocator) Live() int {
	return int(ra.nextReg) - len(ra.freeRegs)
}

func (ra *RegisterAllocator) isAvailable(reg Register) bool {
	if ra.pinnedRegs[reg] {
		return false
	}
	for _, r := range ra.freeRegs {
		if r == reg {
			return true
		}
	}
	return reg >= ra.nextReg
}

func (ra *RegisterAllocator) reserve(reg Register) {
	if ra.removeFree(reg) {
		if reg > ra.maxReg || !ra.used {
			ra.maxReg = reg
		}
		ra.used = true
		return
	}
	for r := ra.nextReg; r < reg; r++ {
		ra.freeRegs = append(ra.freeRegs, r)
	}
	ra.nextReg = reg + 1
	if reg > ra.maxReg || !ra.used {
		ra.maxReg = reg
	}
	ra.used = true
}

func (ra *RegisterAllocator) removeFree(reg Register) bool {
	for i, r := range ra.freeRegs {
		if r == reg {
			ra.freeRegs = append(ra.freeRegs[:i], ra.freeRegs[i+1:]...)
			return true
		}
	}
	return false
}
