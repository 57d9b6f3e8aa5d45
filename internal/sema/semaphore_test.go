package sema

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/g8kernel/g8rtos/internal/critical"
)

// goroutineID duplicates internal/critical's technique for telling one
// goroutine's call to MarkBlocked apart from another's: there is no
// parameter on ParkCurrent to say which wait this is, so the fake
// parker below keys its bookkeeping on the calling goroutine itself.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// fakeParker is a minimal Parker good enough to exercise Semaphore's
// counting and blocking contract without a real scheduler: MarkBlocked
// and ParkCurrent always run back to back on the same goroutine (as
// Semaphore.Wait calls them), so keying per-goroutine channels by
// goroutine id correctly pairs each blocked caller with its own wakeup,
// and WakeOne pops a simple FIFO of goroutine ids per semaphore, waking
// exactly one waiter per call. (The real scheduler instead wakes the
// first blocked thread it meets walking the ring from running.next.)
type fakeParker struct {
	mu     sync.Mutex
	chans  map[int64]chan struct{}
	queues map[*Semaphore][]int64
}

func newFakeParker() *fakeParker {
	return &fakeParker{
		chans:  make(map[int64]chan struct{}),
		queues: make(map[*Semaphore][]int64),
	}
}

func (p *fakeParker) MarkBlocked(sem *Semaphore) {
	gid := goroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chans[gid] = make(chan struct{})
	p.queues[sem] = append(p.queues[sem], gid)
}

func (p *fakeParker) ParkCurrent() {
	gid := goroutineID()
	p.mu.Lock()
	ch := p.chans[gid]
	p.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (p *fakeParker) WakeOne(sem *Semaphore) {
	p.mu.Lock()
	q := p.queues[sem]
	if len(q) == 0 {
		p.mu.Unlock()
		return
	}
	gid := q[0]
	p.queues[sem] = q[1:]
	ch := p.chans[gid]
	delete(p.chans, gid)
	p.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func TestWaitSignalBasic(t *testing.T) {
	var crit critical.Section
	s := New(&crit, newFakeParker(), 1, "test")

	s.Wait() // count 1 -> 0, no block
	if v := s.Value(); v != 0 {
		t.Fatalf("value = %d, want 0", v)
	}

	s.Signal() // count 0 -> 1
	if v := s.Value(); v != 1 {
		t.Fatalf("value = %d, want 1", v)
	}
}

func TestWaitBlocksUntilSignal(t *testing.T) {
	var crit critical.Section
	s := New(&crit, newFakeParker(), 0, "mutex")

	done := make(chan struct{})
	go func() {
		s.Wait() // 0 -> -1, blocks
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	default:
	}

	s.Signal() // -1 -> 0, wakes the waiter
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never woke after Signal")
	}
}

func TestSignalOnlyWakesOneWaiter(t *testing.T) {
	var crit critical.Section
	s := New(&crit, newFakeParker(), 0, "mutex")

	var woke int32 = 0
	var mu sync.Mutex
	wake := func() {
		mu.Lock()
		woke++
		mu.Unlock()
	}

	for i := 0; i < 3; i++ {
		go func() {
			s.Wait()
			wake()
		}()
	}
	time.Sleep(20 * time.Millisecond)

	s.Signal()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := woke
	mu.Unlock()
	if got != 1 {
		t.Fatalf("woke = %d waiters after one Signal, want 1", got)
	}
}
