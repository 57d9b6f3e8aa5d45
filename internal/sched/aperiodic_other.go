//go:build !unix

package sched

import "errors"

// Non-POSIX hosts have no signal-based stand-in for a hardware
// interrupt line; aperiodic registration still validates and records
// the table entry (aperiodic.go), but nothing will ever fire it.
func (s *Scheduler) bindIRQ(irq int, entry *aperiodicEntry) {}

// FireIRQ is unavailable outside POSIX hosts.
func (s *Scheduler) FireIRQ(irq int) error {
	return errors.New("g8rtos: aperiodic irq simulation requires a POSIX host")
}
