// Package alert defines threshold-exceeded events and the sinks that record them
package alert

import (
	"fmt"
	"time"
)

// Kind identifies a metric family
type Kind string

const (
	KindCPU          Kind = "cpu"
	KindMemory       Kind = "memory"
	KindDisk         Kind = "disk"
	KindProcessCount Kind = "process_count"
)

// Kinds lists every metric family in sampler start order
var Kinds = []Kind{KindCPU, KindMemory, KindDisk, KindProcessCount}

// Event is raised when an observed value is strictly above its threshold
type Event struct {
	Kind      Kind
	Label     string // mount point for disk events, empty otherwise
	Value     float64
	Threshold float64
	Timestamp time.Time
}

// Exceeds reports whether value should raise an alert against threshold.
// Equality does not alert.
func Exceeds(value, threshold float64) bool {
	return value > threshold
}

// Message renders the human-readable alert text
func (e Event) Message() string {
	switch e.Kind {
	case KindCPU:
		return fmt.Sprintf("CPU usage is at %.1f%%!", e.Value)
	case KindMemory:
		return fmt.Sprintf("Memory usage is at %.2f%%!", e.Value)
	case KindDisk:
		return fmt.Sprintf("Disk usage on %s is at %.2f%%!", e.Label, e.Value)
	case KindProcessCount:
		return fmt.Sprintf("There are %d running processes!", int64(e.Value))
	default:
		if e.Label != "" {
			return fmt.Sprintf("%s on %s is at %g (threshold %g)!", e.Kind, e.Label, e.Value, e.Threshold)
		}
		return fmt.Sprintf("%s is at %g (threshold %g)!", e.Kind, e.Value, e.Threshold)
	}
}

// Sink records alert events. Record must be safe for concurrent use and
// must not return before the event has been written.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

// Record implements Sink
func (f SinkFunc) Record(e Event) {
	f(e)
}
