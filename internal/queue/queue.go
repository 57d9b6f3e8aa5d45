// Package queue implements the kernel's bounded inter-thread FIFO:
// a fixed-capacity ring buffer of 32-bit words built from two
// counting semaphores, per spec.md §4.5.
package queue

import (
	"github.com/g8kernel/g8rtos/internal/critical"
	"github.com/g8kernel/g8rtos/internal/sema"
)

// Option configures a Queue at construction.
type Option func(*Queue)

// WithReaderFairness swaps the default mutex-before-count wait order
// for count-before-mutex: a reader first waits for data to exist,
// then competes for the mutex, so a reader never parks holding the
// mutex and starving other readers the way the spec's literal
// ordering can (spec.md §4.5's documented caveat). Writers are
// unaffected either way, since they never take the mutex.
func WithReaderFairness() Option {
	return func(q *Queue) { q.readerFair = true }
}

// Queue is one fixed-capacity ring buffer of 32-bit words.
type Queue struct {
	crit   *critical.Section
	mutex  *sema.Semaphore // init 1; guards nothing but read_queue's own turn-taking
	count  *sema.Semaphore // init 0; tracks element count, blocks empty reads

	buf        []uint32
	head, tail int
	size       int // number of occupied slots; guarded by crit
	lostData   uint64
	readerFair bool
	name       string
}

// New creates a queue of the given capacity sharing crit and parker
// with the rest of the kernel (the mutex and count semaphores are
// real kernel semaphores, not private locks).
func New(crit *critical.Section, parker sema.Parker, capacity int, name string, opts ...Option) *Queue {
	q := &Queue{
		crit: crit,
		buf:  make([]uint32, capacity),
		name: name,
	}
	q.mutex = sema.New(crit, parker, 1, name+".mutex")
	q.count = sema.New(crit, parker, 0, name+".count")
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Capacity returns QUEUE_CAP for this queue.
func (q *Queue) Capacity() int { return len(q.buf) }

// Reset reimplements init_queue: cursors, counters, and the lost-data
// counter all return to zero. Only safe before any thread can
// possibly be blocked on this queue.
func (q *Queue) Reset() {
	m := q.crit.Enter()
	q.head, q.tail, q.size, q.lostData = 0, 0, 0, 0
	q.crit.Leave(m)
	q.mutex.Reinit(1)
	q.count.Reinit(0)
}

// Read implements read_queue: wait for the turn-taking mutex, wait
// for an element to exist, pop the head word, release the mutex.
func (q *Queue) Read() uint32 {
	if q.readerFair {
		q.count.Wait()
		q.mutex.Wait()
	} else {
		q.mutex.Wait()
		q.count.Wait()
	}

	m := q.crit.Enter()
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.crit.Leave(m)

	q.mutex.Signal()
	return v
}

// ErrFull is returned by Write when the queue has no room; spec.md
// calls this QueueFull.
type ErrFull struct{}

func (ErrFull) Error() string { return "queue full" }

// Write implements write_queue: on a full queue it increments the
// lost-data counter and returns ErrFull instead of blocking. Writers
// never take the mutex semaphore.
func (q *Queue) Write(word uint32) error {
	m := q.crit.Enter()
	if q.size == len(q.buf) {
		q.lostData++
		q.crit.Leave(m)
		return ErrFull{}
	}
	q.buf[q.tail] = word
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	q.crit.Leave(m)

	q.count.Signal()
	return nil
}

// Stats is a diagnostic snapshot, exposing the lost-data counter
// spec.md §7 requires be readable without otherwise disturbing the
// queue.
type Stats struct {
	Size     int
	Capacity int
	LostData uint64
}

// Stats returns a point-in-time snapshot of the queue's occupancy and
// lost-write count.
func (q *Queue) Stats() Stats {
	m := q.crit.Enter()
	defer q.crit.Leave(m)
	return Stats{Size: q.size, Capacity: len(q.buf), LostData: q.lostData}
}
