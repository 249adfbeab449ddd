// Package metrics exposes the observer hooks the dispatcher and drain worker
// report progress through, with a no-op and a Prometheus implementation.
package metrics

import "time"

// RunStats carries the counts of one drain run.
type RunStats struct {
	Polled    int
	Changed   int
	Unchanged int
	Missing   int
	Failed    int
	Requeued  int
}

// Observer receives progress events. Implementations must be safe for
// concurrent use.
type Observer interface {
	PassCompleted(mode, outcome string, d time.Duration)
	DependentsEnqueued(n int)
	ItemDrained(outcome string)
	RunCompleted(stats RunStats, d time.Duration)
}

// Nop discards every event.
type Nop struct{}

func (Nop) PassCompleted(string, string, time.Duration) {}

func (Nop) DependentsEnqueued(int) {}

func (Nop) ItemDrained(string) {}

func (Nop) RunCompleted(RunStats, time.Duration) {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
