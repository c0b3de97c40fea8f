// Package monitor runs the periodic samplers that compare host metrics
// against thresholds and hand exceeded readings to an alert sink.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/logging"
)

var (
	// ErrInvalidInterval is returned for a non-positive sampler interval
	ErrInvalidInterval = errors.New("sampler interval must be positive")
	// ErrInvalidThreshold is returned for a NaN or infinite threshold
	ErrInvalidThreshold = errors.New("sampler threshold must be a finite number")
)

// Recorder observes sampler activity. *metrics.Recorder implements it.
type Recorder interface {
	ObserveSample(kind, label string, v float64)
	ObserveTick(kind string, d time.Duration, err error)
	IncAlert(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSample(string, string, float64)     {}
func (nopRecorder) ObserveTick(string, time.Duration, error) {}
func (nopRecorder) IncAlert(string)                          {}

type settings struct {
	log      *zap.Logger
	recorder Recorder
	now      func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{
		log:      zap.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures samplers and the supervisor
type Option func(*settings)

// WithLogger sets the operational logger
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRecorder reports samples, ticks and alerts to r
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the time source used for event timestamps and
// tick scheduling
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Sampler measures one metric family every Interval and records an
// alert.Event for each reading strictly above Threshold
type Sampler struct {
	probe     Probe
	threshold float64
	interval  time.Duration
	sink      alert.Sink

	kind     string
	log      *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// NewSampler creates a sampler. Configuration is immutable afterwards.
func NewSampler(probe Probe, threshold float64, interval time.Duration, sink alert.Sink, opts ...Option) (*Sampler, error) {
	if probe == nil {
		return nil, errors.New("sampler requires a probe")
	}
	if sink == nil {
		return nil, errors.New("sampler requires an alert sink")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%s: %w, got %s", probe.Kind(), ErrInvalidInterval, interval)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%s: %w, got %v", probe.Kind(), ErrInvalidThreshold, threshold)
	}

	st := newSettings(opts)
	kind := string(probe.Kind())
	return &Sampler{
		probe:     probe,
		threshold: threshold,
		interval:  interval,
		sink:      sink,
		kind:      kind,
		log:       st.log.With(logging.Scope("monitor.sampler"), zap.String("kind", kind)),
		recorder:  st.recorder,
		now:       st.now,
	}, nil
}

// Kind returns the metric family this sampler measures
func (s *Sampler) Kind() alert.Kind {
	return s.probe.Kind()
}

// Interval returns the tick cadence
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Threshold returns the alert threshold
func (s *Sampler) Threshold() float64 {
	return s.threshold
}

// Measure takes one set of readings without evaluating them
func (s *Sampler) Measure(ctx context.Context) ([]Reading, error) {
	return s.probe.Measure(ctx)
}

// Run ticks until ctx is cancelled. Cancellation is checked before every
// measurement and interrupts the post-tick sleep; an in-flight tick is
// allowed to finish.
//
// Tick starts are at least Interval apart. Alerts are stamped after the
// measurement, so when measurement time varies between ticks the gap
// between two alerts can be shorter than Interval.
func (s *Sampler) Run(ctx context.Context) {
	s.log.Debug("sampler started",
		zap.Duration("interval", s.interval),
		zap.Float64("threshold", s.threshold))
	defer s.log.Debug("sampler stopped")

	for tick := uint64(1); ; tick++ {
		if ctx.Err() != nil {
			return
		}

		start := s.now()
		s.Tick(ctx, tick)

		// time spent measuring counts toward the interval
		if !sleep(ctx, s.interval-s.now().Sub(start)) {
			return
		}
	}
}

// Tick performs one measure-evaluate cycle and returns the alerts it
// recorded. Failures and panics are logged and do not escape.
func (s *Sampler) Tick(ctx context.Context, n uint64) (events []alert.Event) {
	start := s.now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during measurement: %v", r)
		}
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			s.log.Debug("measurement interrupted by shutdown", zap.Uint64("tick", n))
			err = nil
		}
		s.recorder.ObserveTick(s.kind, s.now().Sub(start), err)
		if err != nil {
			s.log.Warn("measurement failed", zap.Uint64("tick", n), zap.Error(err))
		}
	}()

	var readings []Reading
	readings, err = s.probe.Measure(ctx)

	for _, r := range readings {
		s.recorder.ObserveSample(s.kind, r.Label, r.Value)
		if !alert.Exceeds(r.Value, s.threshold) {
			continue
		}
		e := alert.Event{
			Kind:      s.probe.Kind(),
			Label:     r.Label,
			Value:     r.Value,
			Threshold: s.threshold,
			Timestamp: s.now(),
		}
		s.recorder.IncAlert(s.kind)
		s.sink.Record(e)
		events = append(events, e)
	}
	return events
}

// sleep waits for d or until ctx is done. It reports whether the
// caller should keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
