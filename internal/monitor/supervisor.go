package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/config"
	"github.com/edgecli/hostsentinel/internal/logging"
	"github.com/edgecli/hostsentinel/internal/sysinfo"
)

var (
	// ErrNoSamplers is returned by Run when there is nothing to supervise
	ErrNoSamplers = errors.New("no samplers to run")
	// ErrAlreadyRunning is returned by a second concurrent Run
	ErrAlreadyRunning = errors.New("supervisor is already running")
)

// Supervisor runs a fixed set of samplers, one goroutine each, and waits
// for all of them to return on shutdown
type Supervisor struct {
	samplers []*Sampler
	log      *zap.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates a supervisor for samplers
func NewSupervisor(samplers []*Sampler, opts ...Option) *Supervisor {
	st := newSettings(opts)
	return &Supervisor{
		samplers: samplers,
		log:      st.log.With(logging.Scope("monitor.supervisor")),
		stopCh:   make(chan struct{}),
	}
}

// Samplers returns the supervised samplers
func (s *Supervisor) Samplers() []*Sampler {
	return s.samplers
}

// Run starts every sampler and blocks until ctx is cancelled or Stop is
// called, then waits for each sampler to finish its current tick.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.samplers) == 0 {
		return ErrNoSamplers
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, sm := range s.samplers {
		wg.Add(1)
		go func(sm *Sampler) {
			defer wg.Done()
			sm.Run(ctx)
		}(sm)
	}
	s.log.Info("samplers started", zap.Int("count", len(s.samplers)))

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}

	s.log.Info("stopping samplers")
	cancel()
	wg.Wait()
	s.log.Info("all samplers stopped")
	return nil
}

// Stop asks a running (or future) Run to shut down. It is safe to call
// more than once and from any goroutine.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Build creates the four samplers described by cfg. cfg must already be
// validated.
func Build(cfg *config.Config, provider sysinfo.Provider, sink alert.Sink, opts ...Option) (*Supervisor, error) {
	st := newSettings(opts)

	probes := []struct {
		probe Probe
		cfg   config.SamplerConfig
	}{
		{NewCPUProbe(provider, cfg.CPU.EffectiveWindow()), config.SamplerConfig{Interval: cfg.CPU.Interval, Threshold: cfg.CPU.Threshold}},
		{NewMemoryProbe(provider), cfg.Memory},
		{NewDiskProbe(provider, cfg.IgnoreList, st.log), cfg.Disk},
		{NewProcessProbe(provider), cfg.Process},
	}

	samplers := make([]*Sampler, 0, len(probes))
	for _, p := range probes {
		sm, err := NewSampler(p.probe, p.cfg.Threshold, p.cfg.Interval, sink, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build sampler: %w", err)
		}
		samplers = append(samplers, sm)
	}
	return NewSupervisor(samplers, opts...), nil
}
