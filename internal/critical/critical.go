// Package critical implements the kernel's critical-section primitive.
//
// On the original hardware this disables and restores the processor's
// interrupt mask around mutation of kernel tables. There is no
// interrupt mask in a hosted Go process, so the same contract —
// enter/leave pairs nest, and a region can be entered again from
// within a function that is itself called while the region is
// already held — is realized with a reentrant lock: one real
// goroutine (thread holding the run token, or the tick driver) may
// hold the section at a time, and that same goroutine may re-enter
// it without blocking on itself.
package critical

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Section is a single nestable, reentrant critical section. The zero
// value is ready to use.
type Section struct {
	mu     sync.Mutex
	holder int64 // goroutine ID currently holding the section, 0 = unheld
	depth  int
	gate   sync.Mutex // serializes non-holders waiting to become holder
}

// Mask is the opaque token returned by Enter and consumed by Leave. It
// records the nesting depth at the moment of entry so Leave can
// restore exactly that depth, matching "enter; enter; leave(inner);
// leave(outer)" leaving the section in its original state.
type Mask int

// Enter begins (or re-enters) the critical section and returns a mask
// to hand to the matching Leave. A goroutine that already holds the
// section may call Enter again without blocking; any other goroutine
// blocks until the section is fully released (depth returns to 0).
func (s *Section) Enter() Mask {
	id := goroutineID()

	s.mu.Lock()
	if s.holder == id {
		s.depth++
		m := Mask(s.depth - 1)
		s.mu.Unlock()
		return m
	}
	s.mu.Unlock()

	s.gate.Lock()
	s.mu.Lock()
	s.holder = id
	s.depth = 1
	s.mu.Unlock()
	return 0
}

// Leave restores the critical section to the depth captured by mask.
// Leave must be called exactly once per Enter, in LIFO order, by the
// same goroutine that called the matching Enter.
func (s *Section) Leave(mask Mask) {
	s.mu.Lock()
	s.depth = int(mask)
	if s.depth == 0 {
		s.holder = 0
		s.mu.Unlock()
		s.gate.Unlock()
		return
	}
	s.mu.Unlock()
}

// Locked runs fn with the section held and releases it on return,
// including on panic.
func (s *Section) Locked(fn func()) {
	m := s.Enter()
	defer s.Leave(m)
	fn()
}

// goroutineID extracts the calling goroutine's runtime ID from its
// stack trace header ("goroutine 123 [running]:"). It exists solely
// so Section can tell "the same logical thread of control re-entering
// its own critical section" apart from "a different thread trying to
// get in" — there is no cheaper portable way to ask the runtime which
// goroutine is currently executing.
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
