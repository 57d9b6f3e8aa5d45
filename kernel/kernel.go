// Package kernel is the public façade over the scheduler, semaphore,
// and queue subsystems: it is the one package application code is
// meant to import.
package kernel

import (
	"fmt"
	"log"
	"sync"

	"github.com/g8kernel/g8rtos/internal/critical"
	"github.com/g8kernel/g8rtos/internal/queue"
	"github.com/g8kernel/g8rtos/internal/sched"
	"github.com/g8kernel/g8rtos/internal/sema"
)

// ThreadID identifies a thread across add_thread/kill_thread calls.
type ThreadID = sched.ThreadID

// Kernel is one instance of the scheduler, its thread table, its
// semaphores and queues, and the tick driver that advances them. The
// zero value is not usable; construct with New.
type Kernel struct {
	cfg    Config
	crit   *critical.Section
	sched  *sched.Scheduler
	logger *log.Logger

	semMu sync.Mutex
	sems  map[string]*sema.Semaphore

	queues []*queue.Queue
}

// New constructs a Kernel from cfg. logger may be nil, in which case
// the kernel logs to the standard logger's default destination with a
// "g8rtos: " prefix.
func New(cfg Config, logger *log.Logger) *Kernel {
	if logger == nil {
		logger = log.New(log.Writer(), "g8rtos: ", log.LstdFlags)
	}
	crit := new(critical.Section)
	k := &Kernel{
		cfg:    cfg,
		crit:   crit,
		logger: logger,
		sems:   make(map[string]*sema.Semaphore),
		queues: make([]*queue.Queue, cfg.MaxQueues),
	}
	k.sched = sched.New(sched.Limits{
		MaxThreads:           cfg.MaxThreads,
		MaxPeriodic:          cfg.MaxPeriodic,
		StackWords:           cfg.StackWords,
		IdlePriority:         cfg.IdlePriority,
		AperiodicMinPriority: cfg.AperiodicMinPriority,
		MaxIRQ:               cfg.MaxIRQ,
	}, crit)
	return k
}

func wrap(err error, fallback Code) error {
	if err == nil {
		return nil
	}
	switch err {
	case sched.ErrThreadLimitReached:
		return newError(ThreadLimitReached, err.Error())
	case sched.ErrNoThreadsScheduled:
		return newError(NoThreadsScheduled, err.Error())
	case sched.ErrInconsistentAlive:
		return newError(InconsistentAlive, err.Error())
	case sched.ErrNoSuchThread:
		return newError(NoSuchThread, err.Error())
	case sched.ErrCannotKillLast:
		return newError(CannotKillLast, err.Error())
	case sched.ErrIrqOutOfRange:
		return newError(IrqOutOfRange, err.Error())
	case sched.ErrHwiPriorityInvalid:
		return newError(HwiPriorityInvalid, err.Error())
	case sched.ErrPeriodicTableFull:
		return newError(PeriodicTableFull, err.Error())
	default:
		return newError(fallback, err.Error())
	}
}

// AddThread installs entry as a new thread at the given priority,
// returning its id. See spec.md §4.2.
func (k *Kernel) AddThread(priority uint8, name string, entry func()) (ThreadID, error) {
	id, err := k.sched.AddThread(priority, name, entry)
	if err != nil {
		return 0, wrap(err, ThreadLimitReached)
	}
	return id, nil
}

// KillThread terminates the thread named by id.
func (k *Kernel) KillThread(id ThreadID) error {
	return wrap(k.sched.KillThread(id), NoSuchThread)
}

// KillSelf terminates the calling thread. Must be called from inside
// a thread body; it does not return, except when the caller is the only
// alive thread: then it returns without effect and reports no error.
func (k *Kernel) KillSelf() { k.sched.KillSelf() }

// CurrentID returns the id of the thread currently holding the CPU.
func (k *Kernel) CurrentID() ThreadID { return k.sched.CurrentID() }

// Sleep puts the calling thread to sleep for the given number of
// ticks.
func (k *Kernel) Sleep(ticks uint32) { k.sched.Sleep(ticks) }

// Yield gives up the CPU without otherwise changing the calling
// thread's runnable state.
func (k *Kernel) Yield() { k.sched.Yield() }

// AddPeriodic installs handler to run every period ticks from the
// tick driver. See spec.md §4.3.
func (k *Kernel) AddPeriodic(period uint32, handler func()) error {
	return wrap(k.sched.AddPeriodic(period, handler), PeriodicTableFull)
}

// AddAperiodic binds handler as the simulated ISR for irq at the
// given priority. See spec.md §4.6.
func (k *Kernel) AddAperiodic(handler func(), priority uint8, irq int) error {
	return wrap(k.sched.AddAperiodic(handler, priority, irq), IrqOutOfRange)
}

// FireIRQ simulates irq's hardware line asserting. Only meaningful on
// a POSIX host; see internal/sched/aperiodic_unix.go. An out-of-range
// irq is reported as an *Error with Code IrqOutOfRange; a failure to
// raise the host signal is returned as the underlying OS error.
func (k *Kernel) FireIRQ(irq int) error {
	err := k.sched.FireIRQ(irq)
	if err == sched.ErrIrqOutOfRange {
		return wrap(err, IrqOutOfRange)
	}
	return err
}

// NewSemaphore creates (or, if name was already used, returns) a
// named application semaphore initialized to value.
func (k *Kernel) NewSemaphore(name string, value int32) *sema.Semaphore {
	k.semMu.Lock()
	defer k.semMu.Unlock()
	if s, ok := k.sems[name]; ok {
		return s
	}
	s := sema.New(k.crit, k.sched, value, name)
	k.sems[name] = s
	return s
}

// InitQueue (re)initializes the queue at index i with the
// configured capacity. i must be in [0, MaxQueues).
func (k *Kernel) InitQueue(i int, opts ...queue.Option) error {
	if i < 0 || i >= len(k.queues) {
		return newError(NoSuchQueue, fmt.Sprintf("queue index %d out of range", i))
	}
	q := queue.New(k.crit, k.sched, k.cfg.QueueCapacity, fmt.Sprintf("queue%d", i), opts...)
	k.queues[i] = q
	return nil
}

func (k *Kernel) queueAt(i int) (*queue.Queue, error) {
	if i < 0 || i >= len(k.queues) || k.queues[i] == nil {
		return nil, newError(NoSuchQueue, fmt.Sprintf("queue %d not initialized", i))
	}
	return k.queues[i], nil
}

// ReadQueue blocks until queue i has data, then pops and returns one
// word.
func (k *Kernel) ReadQueue(i int) (uint32, error) {
	q, err := k.queueAt(i)
	if err != nil {
		return 0, err
	}
	return q.Read(), nil
}

// WriteQueue pushes word onto queue i, or returns QueueFull if it is
// already at capacity.
func (k *Kernel) WriteQueue(i int, word uint32) error {
	q, err := k.queueAt(i)
	if err != nil {
		return err
	}
	if err := q.Write(word); err != nil {
		return newError(QueueFull, err.Error())
	}
	return nil
}

// QueueStats returns a diagnostic snapshot of queue i.
func (k *Kernel) QueueStats(i int) (queue.Stats, error) {
	q, err := k.queueAt(i)
	if err != nil {
		return queue.Stats{}, err
	}
	return q.Stats(), nil
}

// SysTime returns the current tick count.
func (k *Kernel) SysTime() uint32 { return k.sched.SysTime() }

// ThreadCount returns the number of alive threads.
func (k *Kernel) ThreadCount() int { return k.sched.ThreadCount() }

// Tick drives the kernel's notion of time by exactly one system tick.
// Deterministic tests call this directly; Run calls it automatically
// on cfg.TickInterval.
func (k *Kernel) Tick() { k.sched.Tick() }

// Launch hands the CPU to the first scheduled thread. If the
// application has not added a thread at IdlePriority, Launch adds a
// trivial spinning one automatically, satisfying invariant I3.
func (k *Kernel) Launch() error {
	if !k.sched.HasIdle() {
		if _, err := k.sched.AddThread(k.cfg.IdlePriority, "idle", func() {
			for {
				k.sched.Yield()
			}
		}); err != nil {
			return wrap(err, ThreadLimitReached)
		}
	}
	return wrap(k.sched.Launch(), NoThreadsScheduled)
}

// Logger returns the kernel's diagnostic logger.
func (k *Kernel) Logger() *log.Logger { return k.logger }
