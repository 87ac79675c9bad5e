package heap

import (
	"errors"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cinder.heap")

// ErrNoInvoker is returned when guest code must run (a getter, valueOf, ...)
// but no VM has been attached to the heap.
var ErrNoInvoker = errors.New("heap: no invoker attached")

// Color is the trial-deletion mark of a node.
type Color uint8

const (
	Black  Color = iota // in use or free
	Gray                // possible member of a garbage cycle
	White               // member of a garbage cycle
	Purple              // possible root of a garbage cycle
)

// Header is the per-node bookkeeping of the heap. Types that live on the
// heap embed it.
type Header struct {
	rc       int32
	color    Color
	buffered bool
	inZCT    bool
	freed    bool
}

func (h *Header) NodeHeader() *Header { return h }

// RefCount is the number of strong references from heap nodes and host pins.
func (h *Header) RefCount() int { return int(h.rc) }

// Freed reports whether the node has been reclaimed.
func (h *Header) Freed() bool { return h.freed }

// Node is anything the heap tracks.
type Node interface {
	NodeHeader() *Header
	// EnumerateOutgoingRefs visits every strong edge, once per reference.
	EnumerateOutgoingRefs(visit func(Node))
	// ClearRefs drops outgoing references without touching counts; the
	// node has been freed.
	ClearRefs()
}

// RootFunc enumerates references held outside the heap (VM registers,
// accumulators, value stacks, staged arguments, live scopes).
type RootFunc func(visit func(Node))

// Invoker runs guest functions on behalf of the heap (accessors, valueOf).
type Invoker interface {
	Call(fn *Object, this Value, args []Value) (Value, error)
}

// Options configure a Heap.
type Options struct {
	// SuspectThreshold is the suspect ring size at which NeedsCollection
	// starts reporting true.
	SuspectThreshold int
	// MaxObjects bounds the live node count; 0 means unlimited.
	MaxObjects int
}

func DefaultOptions() Options {
	return Options{SuspectThreshold: 512}
}

// Stats are cumulative heap counters.
type Stats struct {
	Allocated   uint64
	Freed       uint64
	CyclesFreed uint64
	Collections uint64
	Live        int
	Suspects    int
	ZeroCount   int
	TotalPause  time.Duration
}

// Heap is a realm-local reference-counted heap with deferred counting for
// VM roots and synchronous cycle collection.
type Heap struct {
	opts       Options
	live       map[Node]struct{}
	zct        []Node
	suspects   suspectRing
	invoker    Invoker
	onTrack    func(Node)
	stats      Stats
	collecting bool
	exhausted  bool
}

func New(opts Options) *Heap {
	if opts.SuspectThreshold <= 0 {
		opts.SuspectThreshold = DefaultOptions().SuspectThreshold
	}
	return &Heap{
		opts:     opts,
		live:     make(map[Node]struct{}),
		suspects: newSuspectRing(opts.SuspectThreshold),
	}
}

func (h *Heap) SetInvoker(inv Invoker) { h.invoker = inv }

func (h *Heap) Invoker() Invoker { return h.invoker }

// OnTrack installs fn to observe every allocation. The VM uses it to root
// nodes that host code holds only in Go locals.
func (h *Heap) OnTrack(fn func(Node)) { h.onTrack = fn }

// Call invokes fn through the attached invoker.
func (h *Heap) Call(fn *Object, this Value, args ...Value) (Value, error) {
	if h.invoker == nil {
		return Undefined, ErrNoInvoker
	}
	return h.invoker.Call(fn, this, args)
}

// Track registers a freshly allocated node. Its count starts at zero, so it
// sits in the zero-count table until something links to it.
func (h *Heap) Track(n Node) {
	hdr := n.NodeHeader()
	h.live[n] = struct{}{}
	h.stats.Allocated++
	hdr.inZCT = true
	h.zct = append(h.zct, n)
	if h.onTrack != nil {
		h.onTrack(n)
	}
	if h.opts.MaxObjects > 0 && len(h.live) > h.opts.MaxObjects {
		if !h.exhausted {
			log.Errorf("heap exhausted: %d live nodes", len(h.live))
		}
		h.exhausted = true
	}
}

// Exhausted reports whether MaxObjects was exceeded.
func (h *Heap) Exhausted() bool { return h.exhausted }

// IsLive reports whether n is still tracked.
func (h *Heap) IsLive(n Node) bool {
	if n == nil {
		return false
	}
	_, ok := h.live[n]
	return ok
}

// LiveCount is the number of tracked nodes.
func (h *Heap) LiveCount() int { return len(h.live) }

func (h *Heap) Stats() Stats {
	s := h.stats
	s.Live = len(h.live)
	s.Suspects = h.suspects.len()
	s.ZeroCount = len(h.zct)
	return s
}

// NeedsCollection reports whether enough suspects or zero-count nodes
// have accumulated to make a collection worthwhile.
func (h *Heap) NeedsCollection() bool {
	return h.suspects.len() >= h.opts.SuspectThreshold || len(h.zct) >= h.opts.SuspectThreshold*8
}

// Retain adds a strong reference to the node behind v.
func (h *Heap) Retain(v Value) {
	if n := v.Node(); n != nil {
		h.RetainNode(n)
	}
}

// Release drops a strong reference to the node behind v.
func (h *Heap) Release(v Value) {
	if n := v.Node(); n != nil {
		h.ReleaseNode(n)
	}
}

func (h *Heap) RetainNode(n Node) {
	hdr := n.NodeHeader()
	if hdr.freed {
		return
	}
	hdr.rc++
	hdr.color = Black
}

func (h *Heap) ReleaseNode(n Node) {
	hdr := n.NodeHeader()
	if hdr.freed {
		return
	}
	if hdr.rc <= 0 {
		log.Warningf("release of node with count %d", hdr.rc)
		return
	}
	hdr.rc--
	if hdr.rc == 0 {
		hdr.color = Black
		if !hdr.inZCT {
			hdr.inZCT = true
			h.zct = append(h.zct, n)
		}
		return
	}
	if hdr.color != Purple {
		hdr.color = Purple
		if !hdr.buffered {
			hdr.buffered = true
			h.suspects.push(n)
		}
	}
}

// swap replaces old with next in a retained slot.
func (h *Heap) swap(old, next Value) {
	h.Retain(next)
	h.Release(old)
}

func (h *Heap) retainObj(o *Object) {
	if o != nil {
		h.RetainNode(o)
	}
}

func (h *Heap) releaseObj(o *Object) {
	if o != nil {
		h.ReleaseNode(o)
	}
}
