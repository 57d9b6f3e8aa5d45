// Package sched owns the thread table, the alive ring, and the
// round-robin fixed-priority selection algorithm. It is the one
// package allowed to know what a thread control block looks like;
// internal/sema and internal/queue only ever see it through the
// sema.Parker interface.
package sched

import "github.com/g8kernel/g8rtos/internal/sema"

// Limits mirrors the fixed table sizes from spec.md §2.
type Limits struct {
	MaxThreads           int
	MaxPeriodic          int
	StackWords           int
	IdlePriority         uint8
	AperiodicMinPriority uint8
	MaxIRQ               int // number of installable interrupt lines, irq in [0, MaxIRQ)
}

// ThreadID identifies a thread across its lifetime. The low bits are
// the slot index in the TCB table; the high bits are a generation
// counter that increments every time the slot is reused, so an ID
// captured before a kill can never alias a later, unrelated thread
// occupying the same slot (spec.md §9 design note on thread-ID
// encoding).
type ThreadID uint32

func makeThreadID(slot int, generation uint16) ThreadID {
	return ThreadID(uint32(generation)<<16 | uint32(uint16(slot)))
}

func (id ThreadID) slot() int          { return int(uint16(id)) }
func (id ThreadID) generation() uint16 { return uint16(id >> 16) }

// State is a thread's scheduling state, used only for diagnostics
// (kernel.ThreadInfo) — the selection algorithm itself works directly
// off the asleep/blocked fields.
type State int

const (
	StateRunnable State = iota
	StateRunning
	StateAsleep
	StateBlocked
	StateDead
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateAsleep:
		return "asleep"
	case StateBlocked:
		return "blocked"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// tcb is one thread control block. All field access is guarded by the
// scheduler's shared critical section except runToken, which is a
// channel and safe to send/receive on unsynchronized.
type tcb struct {
	slot       int
	generation uint16
	alive      bool
	name       string
	priority   uint8
	asleep     bool
	wakeAt     uint32
	blocked    *sema.Semaphore
	prev, next int // slot indices into the table; -1 when unlinked

	entry    func()
	runToken chan struct{}
}

func (t *tcb) id() ThreadID { return makeThreadID(t.slot, t.generation) }

func (t *tcb) runnable() bool {
	return t.alive && !t.asleep && t.blocked == nil
}
