package realm

import (
	"cinder/pkg/heap"
)

type microtask struct {
	run  func() error
	pins []heap.Value
}

// EnqueueMicrotask schedules job. Values in pins stay alive until the job
// has run.
func (r *Realm) EnqueueMicrotask(job func() error, pins ...heap.Value) {
	for _, v := range pins {
		r.Heap.Retain(v)
	}
	r.microtasks = append(r.microtasks, microtask{run: job, pins: pins})
}

// PendingMicrotasks is the queue length.
func (r *Realm) PendingMicrotasks() int { return len(r.microtasks) }

// RunNextMicrotask runs the oldest job. It reports false when the queue is
// empty.
func (r *Realm) RunNextMicrotask() (bool, error) {
	if len(r.microtasks) == 0 {
		return false, nil
	}
	job := r.microtasks[0]
	r.microtasks[0] = microtask{}
	r.microtasks = r.microtasks[1:]
	err := job.run()
	for _, v := range job.pins {
		r.Heap.Release(v)
	}
	return true, err
}

// DrainMicrotasks runs jobs until the queue is empty, including jobs
// enqueued while draining. The first error stops the drain.
func (r *Realm) DrainMicrotasks() error {
	for {
		ran, err := r.RunNextMicrotask()
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}
