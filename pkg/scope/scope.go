// Package scope implements the lexical environment chain: declarative
// binding records, object-backed global and with-scopes, label and
// break/continue metadata for breakable constructs.
package scope

import (
	"cinder/pkg/heap"
)

// Kind classifies a binding.
type Kind uint8

const (
	Var Kind = iota
	Let
	Const
	Function
	Param
	CatchParam
	Class
	// PrivateName holds the symbol of a class private name such as #x.
	PrivateName
)

func (k Kind) String() string {
	switch k {
	case Var:
		return "var"
	case Let:
		return "let"
	case Const:
		return "const"
	case Function:
		return "function"
	case Param:
		return "param"
	case CatchParam:
		return "catch"
	case Class:
		return "class"
	case PrivateName:
		return "private"
	}
	return "unknown"
}

// lexical kinds live in the temporal dead zone until initialised.
func (k Kind) lexical() bool { return k == Let || k == Const || k == Class || k == PrivateName }

// Flags describe what a scope was pushed for.
type Flags uint16

const (
	FlagFunction    Flags = 1 << iota // var scope and this-binding boundary
	FlagBlock                         // lexical block
	FlagLoop                          // iteration statement
	FlagBreakable                     // target of an unlabeled break
	FlagContinuable                   // target of an unlabeled continue
	FlagWith                          // object environment from a with statement
	FlagCatch                         // catch clause
	FlagGlobal                        // realm global scope
	FlagModule                        // module wrapper scope
	FlagArrow                         // arrow function body; this is lexical
	FlagEval                          // direct eval body
)

// NoLabel marks a scope that carries no label.
const NoLabel = -1

type binding struct {
	kind        Kind
	value       heap.Value
	initialized bool
}

// Scope is one environment record. Scopes are heap nodes: bindings, the
// parent link, the with-object and function metadata are strong edges.
type Scope struct {
	heap.Header
	h      *heap.Heap
	parent *Scope
	flags  Flags
	depth  int

	index    map[string]int
	names    []string
	bindings []binding

	// object backs a with-scope or the var half of the global scope.
	object *heap.Object

	hasThis   bool
	this      heap.Value
	newTarget heap.Value
	callee    *heap.Object
	home      *heap.Object

	label        int
	BreakAddr    int
	ContinueAddr int

	// iterator is the for-of iterator record closed when the scope is
	// left by an abrupt completion.
	iterator heap.Value
}

// New pushes a child scope.
func New(h *heap.Heap, parent *Scope, flags Flags) *Scope {
	s := &Scope{h: h, parent: parent, flags: flags, label: NoLabel}
	if parent != nil {
		s.depth = parent.depth + 1
		h.RetainNode(parent)
	}
	h.Track(s)
	return s
}

// NewGlobal creates the realm global scope: var and function bindings are
// properties of global, lexical bindings are declarative.
func NewGlobal(h *heap.Heap, global *heap.Object) *Scope {
	s := New(h, nil, FlagGlobal|FlagFunction)
	s.object = global
	h.RetainNode(global)
	s.BindThis(heap.ObjectValue(global))
	return s
}

func (s *Scope) Parent() *Scope         { return s.parent }
func (s *Scope) Flags() Flags           { return s.flags }
func (s *Scope) Is(f Flags) bool        { return s.flags&f != 0 }
func (s *Scope) Depth() int             { return s.depth }
func (s *Scope) Label() int             { return s.label }
func (s *Scope) Object() *heap.Object   { return s.object }
func (s *Scope) Heap() *heap.Heap       { return s.h }
func (s *Scope) Iterator() heap.Value   { return s.iterator }
func (s *Scope) HasIterator() bool      { return s.iterator.IsObject() }
func (s *Scope) IsGlobal() bool         { return s.flags&FlagGlobal != 0 }
func (s *Scope) BindingNames() []string { return append([]string(nil), s.names...) }

// EnumerateOutgoingRefs implements heap.Node.
func (s *Scope) EnumerateOutgoingRefs(visit func(heap.Node)) {
	if s.parent != nil {
		visit(s.parent)
	}
	if s.object != nil {
		visit(s.object)
	}
	for i := range s.bindings {
		if n := s.bindings[i].value.Node(); n != nil {
			visit(n)
		}
	}
	for _, v := range [...]heap.Value{s.this, s.newTarget, s.iterator} {
		if n := v.Node(); n != nil {
			visit(n)
		}
	}
	if s.callee != nil {
		visit(s.callee)
	}
	if s.home != nil {
		visit(s.home)
	}
}

// ClearRefs implements heap.Node.
func (s *Scope) ClearRefs() {
	s.parent = nil
	s.object = nil
	s.index = nil
	s.names = nil
	s.bindings = nil
	s.this = heap.Undefined
	s.newTarget = heap.Undefined
	s.iterator = heap.Undefined
	s.callee = nil
	s.home = nil
}

// SetBreakable records the label and jump targets of a breakable construct.
func (s *Scope) SetBreakable(label, breakAddr, continueAddr int) {
	s.label = label
	s.BreakAddr = breakAddr
	s.ContinueAddr = continueAddr
}

// DeclareLabel attaches a label index to the scope.
func (s *Scope) DeclareLabel(idx int) { s.label = idx }

// LookupLabel walks toward the enclosing function boundary and returns how
// many scopes up the labelled scope is.
func (s *Scope) LookupLabel(idx int) (depth int, ok bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.label == idx {
			return depth, true
		}
		if cur.flags&(FlagFunction|FlagArrow) != 0 {
			break
		}
		depth++
	}
	return 0, false
}

// AttachIterator makes v the iterator closed on abrupt exit.
func (s *Scope) AttachIterator(v heap.Value) {
	s.h.Retain(v)
	s.h.Release(s.iterator)
	s.iterator = v
}

// DetachIterator removes and returns the attached iterator.
func (s *Scope) DetachIterator() heap.Value {
	v := s.iterator
	s.iterator = heap.Undefined
	s.h.Release(v)
	return v
}

// Renew creates the per-iteration copy of a loop scope: same parent,
// flags and metadata, bindings copied. The iterator moves to the copy.
func (s *Scope) Renew() *Scope {
	n := New(s.h, s.parent, s.flags)
	n.label, n.BreakAddr, n.ContinueAddr = s.label, s.BreakAddr, s.ContinueAddr
	for i, name := range s.names {
		b := s.bindings[i]
		n.add(name, b)
	}
	if s.iterator.IsObject() {
		n.AttachIterator(s.iterator)
		s.DetachIterator()
	}
	return n
}

// PushWith creates an object environment over obj.
func (s *Scope) PushWith(obj *heap.Object) *Scope {
	w := New(s.h, s, FlagWith)
	w.object = obj
	s.h.RetainNode(obj)
	return w
}

func (s *Scope) add(name string, b binding) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[name] = len(s.bindings)
	s.names = append(s.names, name)
	s.bindings = append(s.bindings, b)
	s.h.Retain(b.value)
}

func (s *Scope) own(name string) *binding {
	if i, ok := s.index[name]; ok {
		return &s.bindings[i]
	}
	return nil
}

// VarScope returns the nearest scope that receives var declarations.
func (s *Scope) VarScope() *Scope {
	cur := s
	for cur.parent != nil && cur.flags&(FlagFunction|FlagModule) == 0 {
		cur = cur.parent
	}
	return cur
}
