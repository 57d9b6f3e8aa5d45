//go:build unix

package sched

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Aperiodic hardware interrupts have no literal counterpart in a
// hosted process, so each installable irq line is mapped to one POSIX
// real-time signal (SIGRTMIN+irq): binding an irq calls signal.Notify
// for that signal, and "firing" it — from real hardware there is
// none, so cmd/g8sim's -fire-irq flag does this instead — raises the
// signal against our own process with unix.Kill.

var aperiodicOnce sync.Once
var aperiodicSignals = make(chan os.Signal, 64)
var aperiodicBySignal sync.Map // syscall.Signal -> irqBinding

type irqBinding struct {
	sched *Scheduler
	irq   int
}

func rtSignal(irq int) syscall.Signal {
	sig := unix.SIGRTMIN() + irq
	if max := unix.SIGRTMAX(); sig > max {
		sig = max
	}
	return syscall.Signal(sig)
}

func (s *Scheduler) bindIRQ(irq int, entry *aperiodicEntry) {
	_ = entry
	sig := rtSignal(irq)
	aperiodicBySignal.Store(sig, irqBinding{sched: s, irq: irq})
	signal.Notify(aperiodicSignals, sig)

	aperiodicOnce.Do(func() {
		go func() {
			for received := range aperiodicSignals {
				sig, ok := received.(syscall.Signal)
				if !ok {
					continue
				}
				v, ok := aperiodicBySignal.Load(sig)
				if !ok {
					continue
				}
				b := v.(irqBinding)
				b.sched.dispatchIRQ(b.irq)
			}
		}()
	})
}

// FireIRQ simulates irq's hardware line asserting, by raising the
// POSIX real-time signal bound to it in bindIRQ. Intended for the
// simulation harness and tests; a real NVIC has no equivalent call.
func (s *Scheduler) FireIRQ(irq int) error {
	if irq < 0 || irq >= s.limits.MaxIRQ {
		return ErrIrqOutOfRange
	}
	return unix.Kill(os.Getpid(), rtSignal(irq))
}
