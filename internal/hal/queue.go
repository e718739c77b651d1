package hal

import (
	"sync"

	"github.com/tensorcore/tcvm/status"
)

// Semaphore is a monotonically increasing timeline synchronization
// primitive (spec.md §4.5 "wait-all / wait-any / wait-idle
// synchronization").
type Semaphore struct {
	mu      sync.Mutex
	cond    *sync.Cond
	reached uint64
}

func NewSemaphore() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Signal advances the semaphore to value, waking any waiters whose
// target has been reached. Signaling backward is a no-op.
func (s *Semaphore) Signal(value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value > s.reached {
		s.reached = value
		s.cond.Broadcast()
	}
}

// Wait blocks until the semaphore reaches at least value.
func (s *Semaphore) Wait(value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.reached < value {
		s.cond.Wait()
	}
}

func (s *Semaphore) reachedValue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reached
}

// SemaphoreWait pairs a semaphore with a target value, for wait-all /
// wait-any calls spanning multiple timelines.
type SemaphoreWait struct {
	Semaphore *Semaphore
	Value     uint64
}

// WaitAll blocks until every wait in waits is satisfied.
func WaitAll(waits []SemaphoreWait) {
	for _, w := range waits {
		w.Semaphore.Wait(w.Value)
	}
}

// WaitAny blocks until at least one wait in waits is satisfied, returning
// its index. Polls rather than using a fully event-driven select since
// sync.Cond has no native multi-wait primitive; acceptable for the
// in-process fake device this HAL backs.
func WaitAny(waits []SemaphoreWait) int {
	for {
		for i, w := range waits {
			if w.Semaphore.reachedValue() >= w.Value {
				return i
			}
		}
	}
}

// Queue is a Device's submission point for command buffers (spec.md §3
// "Queue"; §4.5 "one or more queues (dispatch / transfer categories)").
// Submission executes synchronously in this in-process HAL; Signal is
// honored immediately after execution completes so callers using
// Semaphore-based sequencing observe correct ordering regardless.
type Queue struct {
	device *Device
	Name   string

	mu      sync.Mutex
	pending int
}

func newQueue(d *Device, name string) *Queue {
	return &Queue{device: d, Name: name}
}

// Submit executes cb's recorded commands, then signals signalSem to
// signalValue (if non-nil), after first waiting on every entry in
// waitSems.
func (q *Queue) Submit(cb *CommandBuffer, waitSems []SemaphoreWait, signalSem *Semaphore, signalValue uint64) *status.Status {
	if cb.state != CommandBufferFinalized {
		return status.New(status.FailedPrecondition, "cannot submit a command buffer that has not been finalized")
	}
	WaitAll(waitSems)

	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
	}()

	if st := cb.execute(); !st.OK() {
		return st
	}
	if signalSem != nil {
		signalSem.Signal(signalValue)
	}
	return nil
}

// WaitIdle blocks until no submissions on this queue are outstanding
// (spec.md §4.5 "wait-idle synchronization").
func (q *Queue) WaitIdle() {
	for {
		q.mu.Lock()
		p := q.pending
		q.mu.Unlock()
		if p == 0 {
			return
		}
	}
}
