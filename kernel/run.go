package kernel

import (
	"context"
	"time"
)

// ThreadInfo is a diagnostics-only snapshot of one thread, exposed
// for tools like cmd/g8mon; it carries no synchronization meaning.
type ThreadInfo struct {
	ID       ThreadID
	Name     string
	Priority uint8
	State    string
	WakeAt   uint32
	Running  bool
}

// Threads returns a snapshot of every alive thread in ring order.
func (k *Kernel) Threads() []ThreadInfo {
	snap := k.sched.Snapshot()
	out := make([]ThreadInfo, len(snap))
	for i, s := range snap {
		out[i] = ThreadInfo{
			ID:       s.ID,
			Name:     s.Name,
			Priority: s.Priority,
			State:    s.State.String(),
			WakeAt:   s.WakeAt,
			Running:  s.Running,
		}
	}
	return out
}

// Run drives the kernel's system tick at cfg.TickInterval until ctx
// is cancelled. It is the host realization of the 1 kHz hardware tick
// timer spec.md §6 requires; deterministic tests should call Tick
// directly instead.
func (k *Kernel) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Tick()
		}
	}
}
