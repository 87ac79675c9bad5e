package vm

import (
	"cinder/pkg/heap"
)

// Collect runs a heap collection with the active frames, host temps and
// nodes held by running host code as roots.
func (vm *VM) Collect() heap.CollectStats {
	return vm.h.Collect(vm.roots)
}

func (vm *VM) roots(visit func(heap.Node)) {
	for _, f := range vm.frames {
		f.eachNode(visit)
	}
	for _, v := range vm.temps {
		if n := v.Node(); n != nil {
			visit(n)
		}
	}
	for _, n := range vm.hostNodes {
		visit(n)
	}
}

// pin retains every node of a suspended frame so that it survives while
// no frame roots it.
func (vm *VM) pin(co *coroutine) {
	co.frame.eachNode(func(n heap.Node) {
		vm.h.RetainNode(n)
		co.pins = append(co.pins, n)
	})
}

func (vm *VM) unpin(co *coroutine) {
	pins := co.pins
	co.pins = nil
	for _, n := range pins {
		vm.h.ReleaseNode(n)
	}
}
