package queue

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/g8kernel/g8rtos/internal/critical"
	"github.com/g8kernel/g8rtos/internal/sema"
)

// goroutineID duplicates internal/critical's technique for telling one
// goroutine's call to MarkBlocked apart from another's.
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

// fakeParker parks each blocked waiter on its own channel, keyed by
// the calling goroutine's id since MarkBlocked and ParkCurrent always
// run back to back on that same goroutine, and wakes the oldest
// still-waiting one per semaphore. Queue's correctness depends only on
// exactly one waiter being woken per WakeOne, which the real ring-based
// Parker also provides (it picks the first blocked thread in ring order).
type fakeParker struct {
	mu     sync.Mutex
	chans  map[int64]chan struct{}
	queues map[*sema.Semaphore][]int64
}

func newFakeParker() *fakeParker {
	return &fakeParker{
		chans:  make(map[int64]chan struct{}),
		queues: make(map[*sema.Semaphore][]int64),
	}
}

func (p *fakeParker) MarkBlocked(s *sema.Semaphore) {
	gid := goroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chans[gid] = make(chan struct{})
	p.queues[s] = append(p.queues[s], gid)
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

func (p *fakeParker) WakeOne(s *sema.Semaphore) {
	p.mu.Lock()
	q := p.queues[s]
	if len(q) == 0 {
		p.mu.Unlock()
		return
	}
	gid := q[0]
	p.queues[s] = q[1:]
	ch := p.chans[gid]
	delete(p.chans, gid)
	p.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func newTestQueue(capacity int, opts ...Option) *Queue {
	var crit critical.Section
	return New(&crit, newFakeParker(), capacity, "test", opts...)
}

func TestWriteThenRead(t *testing.T) {
	q := newTestQueue(4)
	if err := q.Write(10); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := q.Write(20); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v := q.Read(); v != 10 {
		t.Fatalf("read = %d, want 10", v)
	}
	if v := q.Read(); v != 20 {
		t.Fatalf("read = %d, want 20", v)
	}
}

func TestWriteFullReturnsErrFullAndCountsLoss(t *testing.T) {
	q := newTestQueue(2)
	if err := q.Write(1); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := q.Write(2); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if err := q.Write(3); err == nil {
		t.Fatal("write to full queue succeeded, want ErrFull")
	}
	if s := q.Stats(); s.LostData != 1 {
		t.Fatalf("lost data = %d, want 1", s.LostData)
	}
}

func TestReadBlocksUntilWrite(t *testing.T) {
	q := newTestQueue(4)

	got := make(chan uint32, 1)
	go func() { got <- q.Read() }()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("Read returned before any Write")
	default:
	}

	if err := q.Write(42); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("read = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Read never woke after Write")
	}
}

func TestRingWraps(t *testing.T) {
	q := newTestQueue(3)
	for i := uint32(0); i < 9; i++ {
		if err := q.Write(i); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if v := q.Read(); v != i {
			t.Fatalf("read after write %d = %d, want %d", i, v, i)
		}
	}
}

func TestReaderFairnessUnblocksConcurrentReaders(t *testing.T) {
	q := newTestQueue(4, WithReaderFairness())

	results := make(chan uint32, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- q.Read() }()
	}

	// Give both readers a chance to park on count before any data
	// exists. With the count-before-mutex ordering, both block on
	// count directly rather than one serializing behind the other's
	// held mutex.
	time.Sleep(20 * time.Millisecond)

	if err := q.Write(1); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := q.Write(2); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	got := make(map[uint32]bool)
	for i := 0; i < 2; i++ {
		select {
		case v := <-results:
			got[v] = true
		case <-time.After(time.Second):
			t.Fatal("a reader never woke after its write")
		}
	}
	if !got[1] || !got[2] {
		t.Fatalf("readers returned %v, want exactly {1, 2}", got)
	}
}

func TestResetClearsStats(t *testing.T) {
	q := newTestQueue(2)
	_ = q.Write(1)
	_ = q.Write(2)
	_ = q.Write(3) // lost

	q.Reset()
	if s := q.Stats(); s.Size != 0 || s.LostData != 0 {
		t.Fatalf("stats after reset = %+v, want zeroed", s)
	}
	if err := q.Write(9); err != nil {
		t.Fatalf("write after reset: %v", err)
	}
	if v := q.Read(); v != 9 {
		t.Fatalf("read after reset = %d, want 9", v)
	}
}
