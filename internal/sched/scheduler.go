package sched

import (
	"fmt"

	"github.com/g8kernel/g8rtos/internal/critical"
	"github.com/g8kernel/g8rtos/internal/sema"
)

// Err is the small set of sentinel errors sched returns. The kernel
// package maps these onto its own discriminated Code for the public
// API; sched itself stays dependency-free of that type so it can be
// unit tested in isolation.
type Err string

func (e Err) Error() string { return string(e) }

const (
	ErrThreadLimitReached Err = "thread table full"
	ErrNoThreadsScheduled Err = "launch with zero threads"
	ErrInconsistentAlive  Err = "alive ring inconsistent with thread count"
	ErrNoSuchThread       Err = "no thread with that id"
	ErrCannotKillLast     Err = "cannot kill the only remaining thread"
	ErrPeriodicTableFull  Err = "periodic event table full"
)

// threadExit unwinds exactly one thread goroutine's stack, back to the
// recover in run(). It is never a real program error.
type threadExit struct{}

type periodicEntry struct {
	period   uint32
	nextFire uint32
	handler  func()
}

// Scheduler owns the TCB table, the alive ring, the periodic table,
// and the selection algorithm. All exported methods are safe to call
// concurrently; internal state is guarded by crit.
type Scheduler struct {
	limits Limits
	crit   *critical.Section

	table []tcb // fixed-size, index == slot
	free  []int // free slot indices, LIFO

	head    *tcb // arbitrary anchor into the alive ring; nil if empty
	running *tcb
	count   int

	idle *tcb

	sysTime uint32

	periodic []periodicEntry

	aperiodic map[int]*aperiodicEntry

	launched bool
}

// New creates a scheduler with the given table limits, sharing crit
// with every other kernel subsystem (semaphores, queues).
func New(limits Limits, crit *critical.Section) *Scheduler {
	s := &Scheduler{
		limits: limits,
		crit:   crit,
		table:  make([]tcb, limits.MaxThreads),
	}
	for i := range s.table {
		s.table[i].slot = i
		s.table[i].next = -1
		s.table[i].prev = -1
		s.free = append(s.free, limits.MaxThreads-1-i)
	}
	return s
}

// SysTime returns the current tick count.
func (s *Scheduler) SysTime() uint32 {
	m := s.crit.Enter()
	defer s.crit.Leave(m)
	return s.sysTime
}

// ThreadSnapshot is a point-in-time, diagnostics-only view of one
// TCB, used by the interactive monitor. It carries no live state.
type ThreadSnapshot struct {
	ID       ThreadID
	Name     string
	Priority uint8
	State    State
	WakeAt   uint32
	Running  bool
}

// Snapshot returns one ThreadSnapshot per alive thread, in ring order
// starting from the ring anchor (s.head).
func (s *Scheduler) Snapshot() []ThreadSnapshot {
	m := s.crit.Enter()
	defer s.crit.Leave(m)

	out := make([]ThreadSnapshot, 0, s.count)
	if s.head == nil {
		return out
	}
	node := s.head
	for i := 0; i < s.count; i++ {
		st := StateRunnable
		switch {
		case node == s.running:
			st = StateRunning
		case node.asleep:
			st = StateAsleep
		case node.blocked != nil:
			st = StateBlocked
		}
		out = append(out, ThreadSnapshot{
			ID:       node.id(),
			Name:     node.name,
			Priority: node.priority,
			State:    st,
			WakeAt:   node.wakeAt,
			Running:  node == s.running,
		})
		node = &s.table[node.next]
	}
	return out
}

// HasIdle reports whether a thread at IdlePriority has been added.
func (s *Scheduler) HasIdle() bool {
	m := s.crit.Enter()
	defer s.crit.Leave(m)
	return s.idle != nil
}

// ThreadCount returns the number of alive threads.
func (s *Scheduler) ThreadCount() int {
	m := s.crit.Enter()
	defer s.crit.Leave(m)
	return s.count
}

func (s *Scheduler) allocSlot() (int, bool) {
	if len(s.free) == 0 {
		return 0, false
	}
	n := len(s.free) - 1
	slot := s.free[n]
	s.free = s.free[:n]
	return slot, true
}

func (s *Scheduler) insertRing(t *tcb) {
	if s.head == nil {
		t.prev, t.next = t.slot, t.slot
		s.head = t
		return
	}
	tail := s.table[s.head.prev]
	t.prev = tail.slot
	t.next = s.head.slot
	s.table[tail.slot].next = t.slot
	s.head.prev = t.slot
}

func (s *Scheduler) unlinkRing(t *tcb) {
	if t.next == t.slot {
		s.head = nil
		t.prev, t.next = -1, -1
		return
	}
	s.table[t.prev].next = t.next
	s.table[t.next].prev = t.prev
	if s.head.slot == t.slot {
		s.head = &s.table[t.next]
	}
	t.prev, t.next = -1, -1
}

// AddThread installs entry as a new thread at the given priority and
// name, mirroring G8RTOS_AddThread: lowest free slot, linked in just
// before the current ring anchor.
func (s *Scheduler) AddThread(priority uint8, name string, entry func()) (ThreadID, error) {
	m := s.crit.Enter()
	slot, ok := s.allocSlot()
	if !ok {
		s.crit.Leave(m)
		return 0, ErrThreadLimitReached
	}
	t := &s.table[slot]
	t.generation++
	t.alive = true
	t.name = name
	t.priority = priority
	t.asleep = false
	t.wakeAt = 0
	t.blocked = nil
	t.entry = entry
	t.runToken = make(chan struct{})
	s.insertRing(t)
	s.count++
	if priority == s.limits.IdlePriority && s.idle == nil {
		s.idle = t
	}
	id := t.id()
	s.crit.Leave(m)

	go s.run(t)
	return id, nil
}

// run is the control loop shared by every thread goroutine: park
// until handed the run token, execute the thread body once, then
// treat a normal return as an implicit kill_self.
func (s *Scheduler) run(t *tcb) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(threadExit); ok {
				return
			}
			panic(r)
		}
	}()
	for {
		if _, ok := <-t.runToken; !ok {
			return
		}
		t.entry()
		s.killSelf(t)
	}
}

func (s *Scheduler) findAlive(id ThreadID) (*tcb, error) {
	slot := id.slot()
	if slot < 0 || slot >= len(s.table) {
		return nil, ErrNoSuchThread
	}
	t := &s.table[slot]
	if !t.alive || t.generation != id.generation() {
		return nil, ErrNoSuchThread
	}
	return t, nil
}

// KillThread removes the thread identified by id from the ring and
// marks its slot dead. The slot is not returned to the free list, so
// AddThread never hands it out again. If id names the currently running thread, the
// kill takes effect at that thread's next scheduling point, per
// spec.md §5's cancellation model.
func (s *Scheduler) KillThread(id ThreadID) error {
	m := s.crit.Enter()
	t, err := s.findAlive(id)
	if err != nil {
		s.crit.Leave(m)
		return err
	}
	if s.count <= 1 {
		s.crit.Leave(m)
		return ErrCannotKillLast
	}
	s.unlinkRing(t)
	t.alive = false
	s.count--
	wasRunning := t == s.running
	s.crit.Leave(m)

	if !wasRunning {
		close(t.runToken)
	}
	return nil
}

// killSelf is the shared implementation behind the public KillSelf
// call and an entry function returning normally. If t is the only
// alive thread it leaves t alive and returns; otherwise it never
// returns: the calling goroutine unwinds via threadExit.
func (s *Scheduler) killSelf(t *tcb) {
	m := s.crit.Enter()
	if t.alive {
		if s.count <= 1 {
			// Only the idle thread, or a solitary thread, may not
			// kill itself away entirely; treat as a no-op return
			// instead of panicking the process.
			s.crit.Leave(m)
			return
		}
		s.unlinkRing(t)
		t.alive = false
		s.count--
	}
	s.crit.Leave(m)
	s.yield(t)
}

// KillSelf terminates the calling thread. Called from inside a thread
// body; it does not return to its caller, except when the caller is the
// only alive thread: then it returns without effect and reports no error.
func (s *Scheduler) KillSelf() {
	s.killSelf(s.running)
}

// CurrentID returns the id of the thread currently holding the CPU.
func (s *Scheduler) CurrentID() ThreadID {
	m := s.crit.Enter()
	defer s.crit.Leave(m)
	return s.running.id()
}

// Sleep puts the calling thread to sleep for the given number of
// ticks and yields the CPU.
func (s *Scheduler) Sleep(ticks uint32) {
	self := s.running
	m := s.crit.Enter()
	self.asleep = true
	self.wakeAt = s.sysTime + ticks
	s.crit.Leave(m)
	s.yield(self)
}

// Yield gives the CPU to the next runnable thread without changing
// the calling thread's own runnable state. Thread bodies doing
// CPU-bound work between blocking calls are expected to call this
// periodically; the idle thread calls it continuously.
func (s *Scheduler) Yield() {
	s.yield(s.running)
}

// selectNextLocked implements spec.md §4.3's selection algorithm.
// Must be called with crit held.
func (s *Scheduler) selectNextLocked(self *tcb) *tcb {
	var start *tcb
	if self.alive {
		start = &s.table[self.next]
	} else {
		start = s.head
	}
	if start == nil {
		return nil
	}
	var best *tcb
	node := start
	for i := 0; i < s.count; i++ {
		if node.runnable() && (best == nil || node.priority < best.priority) {
			best = node
		}
		node = &s.table[node.next]
	}
	if best == nil {
		return s.idle
	}
	return best
}

// yield gives up the CPU on behalf of self. If self is still alive it
// blocks here until the scheduler hands it the run token again. If
// self was killed (by itself or externally) it never returns: the
// goroutine unwinds via threadExit once the handoff to the next
// thread is complete.
func (s *Scheduler) yield(self *tcb) {
	m := s.crit.Enter()
	alive := self.alive
	next := s.selectNextLocked(self)
	if next == nil {
		s.crit.Leave(m)
		panic(fmt.Sprintf("g8rtos: %v", ErrInconsistentAlive))
	}
	changed := next != self
	if changed {
		s.running = next
	}
	s.crit.Leave(m)

	if !alive {
		if changed {
			next.runToken <- struct{}{}
		}
		panic(threadExit{})
	}
	if !changed {
		return
	}
	next.runToken <- struct{}{}
	if _, ok := <-self.runToken; !ok {
		// KillThread closed the token while self was parked here.
		panic(threadExit{})
	}
}

// Launch starts the scheduler: it requires an idle thread to already
// be present (the kernel façade adds one before calling Launch if the
// application did not), hands the run token to the first selection
// winner, and returns once that thread has been launched. Launch
// itself runs on the calling goroutine and returns immediately after
// dispatch; it does not block for the lifetime of the simulation.
func (s *Scheduler) Launch() error {
	m := s.crit.Enter()
	if s.count == 0 {
		s.crit.Leave(m)
		return ErrNoThreadsScheduled
	}
	if s.idle == nil {
		s.crit.Leave(m)
		return ErrInconsistentAlive
	}
	first := s.selectNextLocked(s.idle)
	if first == nil {
		first = s.idle
	}
	s.running = first
	s.launched = true
	s.crit.Leave(m)

	first.runToken <- struct{}{}
	return nil
}

// Tick drives the kernel's notion of time: it is the host equivalent
// of the system-tick ISR, and — like that ISR on the real hardware —
// runs the whole step (time advance, periodic callbacks, sleeper
// wakeup) as one atomic unit with respect to every other kernel
// critical section.
func (s *Scheduler) Tick() {
	m := s.crit.Enter()
	defer s.crit.Leave(m)

	s.sysTime++
	now := s.sysTime

	for i := range s.periodic {
		p := &s.periodic[i]
		if p.nextFire == now {
			p.handler()
			p.nextFire += p.period
		}
	}

	if s.head != nil {
		node := s.head
		for i := 0; i < s.count; i++ {
			if node.asleep && node.wakeAt <= now {
				node.asleep = false
			}
			node = &s.table[node.next]
		}
	}
}

// AddPeriodic installs handler to run every period ticks from the tick
// driver. Its first firing lands at exactly sysTime+period, and every
// later firing advances by exactly period — entries whose periods
// share a common factor are therefore expected to land on the same
// tick from time to time (spec.md §8 scenario 5 pins this down
// exactly: periods 7 and 14 over 140 ticks fire 20 and 10 times, and
// collide on every multiple of 14). Resolving spec.md §9 open question
// (a): a time-shifting stagger policy was tried and rejected because
// any nonzero shift changes those literal counts. Instead, stagger is
// limited to invocation order: entries due on the same tick run in
// table order (registration order), which Tick already provides by
// scanning s.periodic front-to-back — no separate phase bookkeeping is
// needed to get a deterministic order.
func (s *Scheduler) AddPeriodic(period uint32, handler func()) error {
	m := s.crit.Enter()
	defer s.crit.Leave(m)

	if len(s.periodic) >= s.limits.MaxPeriodic {
		return ErrPeriodicTableFull
	}

	s.periodic = append(s.periodic, periodicEntry{
		period:   period,
		nextFire: s.sysTime + period,
		handler:  handler,
	})
	return nil
}

// --- sema.Parker implementation -------------------------------------------

// MarkBlocked implements sema.Parker. Called with crit held.
func (s *Scheduler) MarkBlocked(sem *sema.Semaphore) {
	s.running.blocked = sem
}

// ParkCurrent implements sema.Parker. Called with crit released.
func (s *Scheduler) ParkCurrent() {
	s.yield(s.running)
}

// WakeOne implements sema.Parker. Called with crit held; walks the
// ring from running.next exactly as spec.md §4.4 describes.
func (s *Scheduler) WakeOne(sem *sema.Semaphore) {
	if s.running == nil || s.head == nil {
		return
	}
	node := &s.table[s.running.next]
	for i := 0; i < s.count; i++ {
		if node.blocked == sem {
			node.blocked = nil
			return
		}
		node = &s.table[node.next]
	}
}
