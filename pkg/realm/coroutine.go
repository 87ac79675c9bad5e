package realm

import "cinder/pkg/heap"

// ResumeMode selects how a suspended generator continues.
type ResumeMode uint8

const (
	ResumeNext ResumeMode = iota
	ResumeThrow
	ResumeReturn
)

func (m ResumeMode) String() string {
	switch m {
	case ResumeNext:
		return "next"
	case ResumeThrow:
		return "throw"
	case ResumeReturn:
		return "return"
	}
	return "unknown"
}

// Coroutine is the internal slot of generator objects. Sync generators
// return an iterator result; async generators return a promise for one.
type Coroutine interface {
	heap.Internal
	Resume(mode ResumeMode, v heap.Value) (heap.Value, error)
	IsAsync() bool
}

// CoroutineOf returns the generator slot of v, or nil.
func CoroutineOf(v heap.Value) Coroutine {
	if o := v.AsObject(); o != nil {
		c, _ := o.Internal.(Coroutine)
		return c
	}
	return nil
}
