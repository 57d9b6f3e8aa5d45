// Package sema implements the kernel's counting semaphore: a signed
// integer guarded by the kernel-wide critical section, with blocked
// waiters tracked and woken by whatever owns the thread ring (the
// sched package) rather than by this package itself.
package sema

import "github.com/g8kernel/g8rtos/internal/critical"

// Parker is implemented by the scheduler. It lets a Semaphore block
// the calling thread and wake exactly one blocked waiter without this
// package knowing anything about thread control blocks, stacks, or
// goroutines.
type Parker interface {
	// MarkBlocked records that the currently running thread is now
	// blocked on sem. Called with the shared critical section held.
	MarkBlocked(sem *Semaphore)
	// ParkCurrent gives up the CPU on behalf of the calling thread
	// and does not return until some Signal has cleared its blocked
	// field and the scheduler has chosen to run it again. Called
	// with the shared critical section released.
	ParkCurrent()
	// WakeOne clears the blocked field of exactly one thread blocked
	// on sem, selected by walking the alive ring starting at
	// running.next (FIFO-within-priority-band order). Called with
	// the shared critical section held. WakeOne does not yield.
	WakeOne(sem *Semaphore)
}

// Semaphore is a signed counting semaphore per spec.md §4.4: positive
// means available count; a negative count is minus the number of
// threads waiting, and zero means none is available and none waits.
type Semaphore struct {
	crit   *critical.Section
	parker Parker
	name   string
	count  int32
}

// New creates a semaphore sharing the kernel-wide critical section
// crit and initialized to value. parker supplies the block/wake
// primitives backed by the thread ring.
func New(crit *critical.Section, parker Parker, value int32, name string) *Semaphore {
	return &Semaphore{crit: crit, parker: parker, count: value, name: name}
}

// Name returns the semaphore's diagnostic label (e.g. "queue3.mutex").
func (s *Semaphore) Name() string { return s.name }

// Reinit resets the semaphore to value, equivalent to re-running
// G8RTOS_InitSemaphore. Only safe to call before any thread can
// possibly be waiting on it.
func (s *Semaphore) Reinit(value int32) {
	m := s.crit.Enter()
	s.count = value
	s.crit.Leave(m)
}

// Value returns the current counter value for diagnostics and tests.
// It is not part of the spec's operational API: reading it has no
// synchronization meaning beyond the instant it was taken.
func (s *Semaphore) Value() int32 {
	m := s.crit.Enter()
	v := s.count
	s.crit.Leave(m)
	return v
}

// Wait decrements the semaphore and blocks the calling thread if the
// result went negative, per spec.md §4.4. Wait does not return until
// some Signal unblocks this thread.
func (s *Semaphore) Wait() {
	m := s.crit.Enter()
	s.count--
	block := s.count < 0
	if block {
		s.parker.MarkBlocked(s)
	}
	s.crit.Leave(m)

	if block {
		s.parker.ParkCurrent()
	}
}

// Signal increments the semaphore and, if the result is still
// non-positive, wakes exactly one waiter chosen in ring order. Signal
// never yields: the waker returns immediately and the woken thread
// runs only when the scheduler next picks it (spec.md §4.4 S3).
func (s *Semaphore) Signal() {
	m := s.crit.Enter()
	s.count++
	if s.count <= 0 {
		s.parker.WakeOne(s)
	}
	s.crit.Leave(m)
}
