package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/sysinfo"
)

func newTestSampler(t *testing.T, probe Probe, threshold float64, interval time.Duration, sink alert.Sink, opts ...Option) *Sampler {
	t.Helper()
	s, err := NewSampler(probe, threshold, interval, sink, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSampler_Validation(t *testing.T) {
	sink := &collectSink{}
	probe := constant(alert.KindCPU, 1)

	_, err := NewSampler(probe, 10, 0, sink)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewSampler(probe, 10, -time.Second, sink)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewSampler(probe, 10, time.Second, nil)
	assert.Error(t, err)

	_, err = NewSampler(nil, 10, time.Second, sink)
	assert.Error(t, err)

	s, err := NewSampler(probe, 10, time.Second, sink)
	require.NoError(t, err)
	assert.Equal(t, alert.KindCPU, s.Kind())
	assert.Equal(t, time.Second, s.Interval())
	assert.Equal(t, 10.0, s.Threshold())
}

func TestSampler_StrictThreshold(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		threshold float64
		alerts    int
	}{
		{"above", 10.5, 10, 1},
		{"equal", 10, 10, 0},
		{"below", 9.9, 10, 0},
		{"zero threshold", 0.1, 0, 1},
		{"zero value zero threshold", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &collectSink{}
			s := newTestSampler(t, constant(alert.KindMemory, tt.value), tt.threshold, time.Second, sink)

			events := s.Tick(context.Background(), 1)
			assert.Len(t, events, tt.alerts)
			assert.Equal(t, tt.alerts, sink.Len())
			for _, e := range sink.Events() {
				assert.Greater(t, e.Value, e.Threshold)
			}
		})
	}
}

func TestScenarioA_CPU(t *testing.T) {
	sink := &collectSink{}
	provider := &sysinfo.StaticProvider{CPU: 15.0}
	clock := newFakeClock()
	s := newTestSampler(t, NewCPUProbe(provider, time.Second), 10, time.Second, sink, WithClock(clock.Now))

	s.Tick(context.Background(), 1)

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, alert.Event{
		Kind:      alert.KindCPU,
		Value:     15.0,
		Threshold: 10,
		Timestamp: clock.Now(),
	}, sink.Events()[0])
}

func TestScenarioB_MemoryBelowThreshold(t *testing.T) {
	sink := &collectSink{}
	provider := &sysinfo.StaticProvider{Mem: sysinfo.MemoryStat{Used: 500, Total: 100000}}
	s := newTestSampler(t, NewMemoryProbe(provider), 1, time.Second, sink)

	s.Tick(context.Background(), 1)
	assert.Empty(t, sink.Events())
}

func TestScenarioC_DiskIgnoreList(t *testing.T) {
	sink := &collectSink{}
	provider := &recordingProvider{StaticProvider: &sysinfo.StaticProvider{
		Mounts: []string{"/", "/snap/x"},
		Disks: map[string]sysinfo.DiskStat{
			"/":       {Used: 90, Total: 100},
			"/snap/x": {Used: 99, Total: 100},
		},
	}}
	s := newTestSampler(t, NewDiskProbe(provider, []string{"snap"}, nil), 1, time.Second, sink)

	s.Tick(context.Background(), 1)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, alert.KindDisk, events[0].Kind)
	assert.Equal(t, "/", events[0].Label)
	assert.Equal(t, 90.0, events[0].Value)
	// ignored mounts are never sampled
	assert.Equal(t, []string{"/"}, provider.queried)
}

func TestScenarioD_ProcessCount(t *testing.T) {
	sink := &collectSink{}
	provider := &sysinfo.StaticProvider{Processes: 150}
	s := newTestSampler(t, NewProcessProbe(provider), 100, time.Second, sink)

	s.Tick(context.Background(), 1)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, alert.KindProcessCount, events[0].Kind)
	assert.Equal(t, 150.0, events[0].Value)
	assert.Equal(t, "There are 150 running processes!", events[0].Message())
}

func TestScenarioE_TransientFailureDoesNotStopLoop(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := &collectSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	values := []float64{20, 5, 0, 30, 40}
	probe := &funcProbe{kind: alert.KindCPU, fn: func(_ context.Context, call int) ([]Reading, error) {
		if call == 5 {
			cancel()
		}
		if call == 3 {
			return nil, errors.New("resource temporarily unavailable")
		}
		return []Reading{{Value: values[call-1]}}, nil
	}}

	s := newTestSampler(t, probe, 10, time.Millisecond, sink, WithLogger(zap.New(core)))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not stop")
	}

	assert.Equal(t, 5, probe.Calls())
	var got []float64
	for _, e := range sink.Events() {
		got = append(got, e.Value)
	}
	assert.Equal(t, []float64{20, 30, 40}, got)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "measurement failed", warnings[0].Message)
	assert.Equal(t, uint64(3), warnings[0].ContextMap()["tick"])
	assert.Equal(t, "cpu", warnings[0].ContextMap()["kind"])
}

func TestSampler_PanicIsContained(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &collectSink{}
	probe := &funcProbe{kind: alert.KindMemory, fn: func(context.Context, int) ([]Reading, error) {
		panic("nil stat")
	}}
	s := newTestSampler(t, probe, 1, time.Second, sink, WithLogger(zap.New(core)))

	assert.NotPanics(t, func() { s.Tick(context.Background(), 7) })
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "nil stat")
}

func TestDiskProbe_VanishedMountIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := &collectSink{}
	provider := &sysinfo.StaticProvider{
		Mounts: []string{"/", "/mnt/usb"},
		Disks:  map[string]sysinfo.DiskStat{"/": {Used: 50, Total: 100}},
	}
	log := zap.New(core)
	s := newTestSampler(t, NewDiskProbe(provider, nil, log), 1, time.Second, sink, WithLogger(log))

	s.Tick(context.Background(), 1)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "/", events[0].Label)
	assert.Zero(t, logs.Len())
}

type flakyDiskProvider struct {
	*sysinfo.StaticProvider
}

func (f flakyDiskProvider) DiskUsage(ctx context.Context, mountpoint string) (sysinfo.DiskStat, error) {
	if mountpoint == "/data" {
		return sysinfo.DiskStat{}, errors.New("permission denied")
	}
	return f.StaticProvider.DiskUsage(ctx, mountpoint)
}

func TestDiskProbe_PartialFailureStillAlerts(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &collectSink{}
	provider := flakyDiskProvider{&sysinfo.StaticProvider{
		Mounts: []string{"/data", "/", "/proc"},
		Disks: map[string]sysinfo.DiskStat{
			"/":     {Used: 70, Total: 100},
			"/proc": {Used: 0, Total: 0},
		},
	}}
	s := newTestSampler(t, NewDiskProbe(provider, nil, nil), 1, time.Second, sink, WithLogger(zap.New(core)))

	s.Tick(context.Background(), 1)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "/", events[0].Label)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "permission denied")
}

func TestDiskProbe_Ignored(t *testing.T) {
	p := NewDiskProbe(nil, []string{"snap", "docker"}, nil)

	assert.True(t, p.Ignored("/snap/core/123"))
	assert.True(t, p.Ignored("/var/lib/docker/overlay"))
	assert.False(t, p.Ignored("/SNAP"))
	assert.False(t, p.Ignored("/home"))
	assert.False(t, NewDiskProbe(nil, nil, nil).Ignored("/snap"))
}

func TestMemoryProbe_ZeroTotal(t *testing.T) {
	p := NewMemoryProbe(&sysinfo.StaticProvider{})
	_, err := p.Measure(context.Background())
	assert.ErrorIs(t, err, ErrZeroTotal)
}

func TestSampler_TickSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	const tolerance = 5 * time.Millisecond

	sink := &collectSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probe := constant(alert.KindCPU, 99)
	s := newTestSampler(t, probe, 10, interval, sink)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.Len() >= 4 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	events := sink.Events()
	for i := 1; i < len(events); i++ {
		gap := events[i].Timestamp.Sub(events[i-1].Timestamp)
		assert.GreaterOrEqual(t, gap, interval-tolerance, "gap between alert %d and %d", i-1, i)
	}
}

func TestSampler_TickStartsSpacedWhenMeasurementTimeVaries(t *testing.T) {
	const interval = 40 * time.Millisecond
	const tolerance = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	// slow, fast, slow, fast: the measurement eats a varying share of the interval
	probe := &funcProbe{kind: alert.KindCPU, fn: func(_ context.Context, call int) ([]Reading, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		if call%2 == 1 {
			time.Sleep(30 * time.Millisecond)
		}
		return []Reading{{Value: 50}}, nil
	}}
	s := newTestSampler(t, probe, 10, interval, &collectSink{})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return probe.Calls() >= 4 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, interval-tolerance, "gap between tick %d and %d", i, i+1)
	}
}

func TestSampler_MeasurementTimeCountsTowardInterval(t *testing.T) {
	clock := newFakeClock()
	sink := &collectSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// each measurement consumes the whole interval, as a CPU window does
	probe := &funcProbe{kind: alert.KindCPU, fn: func(context.Context, int) ([]Reading, error) {
		clock.Advance(time.Hour)
		return []Reading{{Value: 50}}, nil
	}}
	s := newTestSampler(t, probe, 10, time.Hour, sink, WithClock(clock.Now))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// with no remaining interval to sleep, ticks follow each other immediately
	require.Eventually(t, func() bool { return probe.Calls() >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestSampler_StopsBeforeNextMeasurement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := constant(alert.KindCPU, 99)
	s := newTestSampler(t, probe, 10, time.Millisecond, &collectSink{})
	s.Run(ctx)

	assert.Zero(t, probe.Calls())
}

func TestSampler_ShutdownDuringMeasurementIsNotAWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx, cancel := context.WithCancel(context.Background())

	probe := &funcProbe{kind: alert.KindCPU, fn: func(ctx context.Context, _ int) ([]Reading, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newTestSampler(t, probe, 10, time.Hour, &collectSink{}, WithLogger(zap.New(core)))
	s.Run(ctx)

	assert.Equal(t, 1, probe.Calls())
	assert.Zero(t, logs.Len())
}

func TestSampler_RecorderWiring(t *testing.T) {
	rec := newCountingRecorder()
	provider := &sysinfo.StaticProvider{
		Mounts: []string{"/", "/home"},
		Disks: map[string]sysinfo.DiskStat{
			"/":     {Used: 90, Total: 100},
			"/home": {Used: 0, Total: 100},
		},
	}
	s := newTestSampler(t, NewDiskProbe(provider, nil, nil), 1, time.Second, &collectSink{}, WithRecorder(rec))

	s.Tick(context.Background(), 1)

	assert.Equal(t, 1, rec.ticks)
	assert.Zero(t, rec.failures)
	assert.Equal(t, 1, rec.alerts["disk"])
	assert.Equal(t, 90.0, rec.samples["disk:/"])
	assert.Equal(t, 0.0, rec.samples["disk:/home"])
}

func TestSampler_DeterministicRuns(t *testing.T) {
	run := func() []alert.Event {
		clock := newFakeClock()
		sink := &collectSink{}
		probe := &funcProbe{kind: alert.KindProcessCount, fn: func(_ context.Context, call int) ([]Reading, error) {
			clock.Advance(time.Second)
			return []Reading{{Value: float64(90 + call*5)}}, nil
		}}
		s := newTestSampler(t, probe, 100, time.Second, sink, WithClock(clock.Now))
		for i := uint64(1); i <= 6; i++ {
			s.Tick(context.Background(), i)
		}
		return sink.Events()
	}

	first, second := run(), run()
	require.Len(t, first, 4)
	assert.Equal(t, first, second)
}
