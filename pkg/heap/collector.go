package heap

import "time"

// CollectStats describes one collection pass.
type CollectStats struct {
	FreedZeroCount int
	FreedCycles    int
	Duration       time.Duration
}

// Freed is the total number of nodes reclaimed by the pass.
func (c CollectStats) Freed() int { return c.FreedZeroCount + c.FreedCycles }

// suspectRing is a growable ring buffer of possible cycle roots.
type suspectRing struct {
	buf        []Node
	head, size int
}

func newSuspectRing(capacity int) suspectRing {
	return suspectRing{buf: make([]Node, capacity)}
}

func (r *suspectRing) len() int { return r.size }

func (r *suspectRing) push(n Node) {
	if r.size == len(r.buf) {
		grown := make([]Node, len(r.buf)*2+1)
		for i := 0; i < r.size; i++ {
			grown[i] = r.buf[(r.head+i)%len(r.buf)]
		}
		r.buf = grown
		r.head = 0
	}
	r.buf[(r.head+r.size)%len(r.buf)] = n
	r.size++
}

// drain empties the ring and returns its contents in insertion order.
func (r *suspectRing) drain() []Node {
	out := make([]Node, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % len(r.buf)
		out[i] = r.buf[idx]
		r.buf[idx] = nil
	}
	r.head, r.size = 0, 0
	return out
}

// Collect runs a full pass: zero-count nodes not reachable from roots are
// freed, then the suspect ring is processed with synchronous trial
// deletion. References enumerated by roots count as external references for
// the duration of the pass.
func (h *Heap) Collect(roots RootFunc) CollectStats {
	if h.collecting {
		return CollectStats{}
	}
	h.collecting = true
	defer func() { h.collecting = false }()

	start := time.Now()
	var stats CollectStats

	var pinned []Node
	if roots != nil {
		roots(func(n Node) {
			if n == nil || n.NodeHeader().freed {
				return
			}
			n.NodeHeader().rc++
			pinned = append(pinned, n)
		})
	}

	stats.FreedZeroCount = h.sweepZeroCount()
	stats.FreedCycles = h.collectCycles()

	for _, n := range pinned {
		hdr := n.NodeHeader()
		if hdr.freed {
			continue
		}
		hdr.rc--
		switch {
		case hdr.rc == 0 && !hdr.inZCT:
			hdr.inZCT = true
			h.zct = append(h.zct, n)
		case hdr.rc > 0:
			// Roots drop their references without a decrement, so a cycle
			// held only by a root would otherwise never become a suspect.
			h.possibleRoot(n)
		}
	}

	stats.Duration = time.Since(start)
	h.stats.Collections++
	h.stats.TotalPause += stats.Duration
	if stats.Freed() > 0 {
		log.Debugf("collection freed %d zero-count and %d cyclic nodes in %s", stats.FreedZeroCount, stats.FreedCycles, stats.Duration)
	}
	return stats
}

// sweepZeroCount frees every zero-count node; freeing cascades through the
// released children.
func (h *Heap) sweepZeroCount() int {
	freed := 0
	for len(h.zct) > 0 {
		work := h.zct
		h.zct = nil
		for _, n := range work {
			hdr := n.NodeHeader()
			hdr.inZCT = false
			if hdr.freed {
				continue
			}
			if hdr.rc != 0 {
				// linked since allocation; it may only be held by a cycle
				h.possibleRoot(n)
				continue
			}
			h.free(n)
			freed++
		}
	}
	return freed
}

func (h *Heap) possibleRoot(n Node) {
	hdr := n.NodeHeader()
	hdr.color = Purple
	if !hdr.buffered {
		hdr.buffered = true
		h.suspects.push(n)
	}
}

func (h *Heap) free(n Node) {
	hdr := n.NodeHeader()
	hdr.freed = true
	hdr.color = Black
	delete(h.live, n)
	h.stats.Freed++
	n.EnumerateOutgoingRefs(func(child Node) {
		h.ReleaseNode(child)
	})
	n.ClearRefs()
}

func (h *Heap) collectCycles() int {
	roots := h.suspects.drain()

	// Mark roots: gray out every purple suspect still alive.
	candidates := roots[:0]
	for _, n := range roots {
		hdr := n.NodeHeader()
		if hdr.color == Purple && hdr.rc > 0 && !hdr.freed {
			h.markGray(n)
			candidates = append(candidates, n)
		} else {
			hdr.buffered = false
			if hdr.color == Purple {
				hdr.color = Black
			}
		}
	}

	for _, n := range candidates {
		h.scan(n)
	}

	var garbage []Node
	for _, n := range candidates {
		n.NodeHeader().buffered = false
		garbage = h.collectWhite(n, garbage)
	}

	// Internal edges of the garbage were already subtracted by markGray, so
	// freeing does not release children again.
	for _, n := range garbage {
		hdr := n.NodeHeader()
		hdr.freed = true
		delete(h.live, n)
	}
	for _, n := range garbage {
		n.ClearRefs()
	}
	h.stats.Freed += uint64(len(garbage))
	h.stats.CyclesFreed += uint64(len(garbage))
	return len(garbage)
}

func (h *Heap) markGray(root Node) {
	if root.NodeHeader().color == Gray {
		return
	}
	root.NodeHeader().color = Gray
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.EnumerateOutgoingRefs(func(child Node) {
			hdr := child.NodeHeader()
			if hdr.freed {
				return
			}
			hdr.rc--
			if hdr.color != Gray {
				hdr.color = Gray
				stack = append(stack, child)
			}
		})
	}
}

func (h *Heap) scan(root Node) {
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		hdr := n.NodeHeader()
		if hdr.color != Gray {
			continue
		}
		if hdr.rc > 0 {
			h.scanBlack(n)
			continue
		}
		hdr.color = White
		n.EnumerateOutgoingRefs(func(child Node) {
			if !child.NodeHeader().freed && child.NodeHeader().color == Gray {
				stack = append(stack, child)
			}
		})
	}
}

func (h *Heap) scanBlack(root Node) {
	root.NodeHeader().color = Black
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.EnumerateOutgoingRefs(func(child Node) {
			hdr := child.NodeHeader()
			if hdr.freed {
				return
			}
			hdr.rc++
			if hdr.color != Black {
				hdr.color = Black
				stack = append(stack, child)
			}
		})
	}
}

func (h *Heap) collectWhite(root Node, garbage []Node) []Node {
	hdr := root.NodeHeader()
	if hdr.color != White || hdr.buffered {
		return garbage
	}
	hdr.color = Black
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		garbage = append(garbage, n)
		n.EnumerateOutgoingRefs(func(child Node) {
			ch := child.NodeHeader()
			if ch.color == White && !ch.buffered && !ch.freed {
				ch.color = Black
				stack = append(stack, child)
			}
		})
	}
	return garbage
}
