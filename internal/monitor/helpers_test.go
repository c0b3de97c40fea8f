package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/sysinfo"
)

// collectSink keeps every recorded event
type collectSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func (c *collectSink) Record(e alert.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collectSink) Events() []alert.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Event(nil), c.events...)
}

func (c *collectSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// funcProbe adapts a function to Probe and counts calls
type funcProbe struct {
	kind alert.Kind
	fn   func(ctx context.Context, call int) ([]Reading, error)

	mu    sync.Mutex
	calls int
}

func (p *funcProbe) Kind() alert.Kind { return p.kind }

func (p *funcProbe) Measure(ctx context.Context) ([]Reading, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	return p.fn(ctx, call)
}

func (p *funcProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func constant(kind alert.Kind, v float64) *funcProbe {
	return &funcProbe{kind: kind, fn: func(context.Context, int) ([]Reading, error) {
		return []Reading{{Value: v}}, nil
	}}
}

// recordingProvider wraps a StaticProvider and remembers which mount
// points had their usage queried
type recordingProvider struct {
	*sysinfo.StaticProvider

	mu      sync.Mutex
	queried []string
}

func (r *recordingProvider) DiskUsage(ctx context.Context, mountpoint string) (sysinfo.DiskStat, error) {
	r.mu.Lock()
	r.queried = append(r.queried, mountpoint)
	r.mu.Unlock()
	return r.StaticProvider.DiskUsage(ctx, mountpoint)
}

// fakeClock only moves when told to
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	mu       sync.Mutex
	samples  map[string]float64
	ticks    int
	failures int
	alerts   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{samples: map[string]float64{}, alerts: map[string]int{}}
}

func (r *countingRecorder) ObserveSample(kind, label string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[kind+":"+label] = v
}

func (r *countingRecorder) ObserveTick(kind string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	if err != nil {
		r.failures++
	}
}

func (r *countingRecorder) IncAlert(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[kind]++
}
