package kernel

import "time"

// Config holds the kernel's fixed table sizes and timing parameters.
// Every field has a spec-mandated default (spec.md §6); Config exists
// so a host program can still override them for testing without
// touching kernel internals.
type Config struct {
	MaxThreads           int
	MaxPeriodic          int
	StackWords           int
	MaxQueues            int
	QueueCapacity        int
	IdlePriority         uint8
	AperiodicMinPriority uint8
	MaxIRQ               int

	// TickInterval is the host realization of the 1 kHz system-tick
	// timer spec.md §6 requires: the interval between Kernel.Run's
	// automatic calls to Tick. Deterministic tests should call Tick
	// directly instead of Run.
	TickInterval time.Duration
}

// DefaultConfig returns the constants from spec.md §6.
func DefaultConfig() Config {
	return Config{
		MaxThreads:           23,
		MaxPeriodic:          6,
		StackWords:           512,
		MaxQueues:            4,
		QueueCapacity:        16,
		IdlePriority:         255,
		AperiodicMinPriority: 6,
		MaxIRQ:               16,
		TickInterval:         time.Millisecond,
	}
}
