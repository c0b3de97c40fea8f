// Package metrics exposes sampler activity as Prometheus metrics
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edgecli/hostsentinel/internal/logging"
)

const namespace = "hostsentinel"

// ShutdownTimeout bounds how long Serve waits for in-flight scrapes
const ShutdownTimeout = 5 * time.Second

// Recorder holds the sentinel's collectors in a private registry
type Recorder struct {
	registry *prometheus.Registry

	samples      *prometheus.GaugeVec
	alerts       *prometheus.CounterVec
	tickFailures *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	sinkFailures *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_value",
			Help:      "Most recent reading per metric kind and label (percent, or count for process_count).",
		}, []string{"kind", "label"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold alerts raised.",
		}, []string{"kind"}),
		tickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_failures_total",
			Help:      "Sampler ticks that hit a measurement failure.",
		}, []string{"kind"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent measuring and evaluating one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_failures_total",
			Help:      "Failed alert writes per sink channel.",
		}, []string{"channel"}),
	}

	r.registry.MustRegister(
		r.samples,
		r.alerts,
		r.tickFailures,
		r.tickDuration,
		r.sinkFailures,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSample records the latest reading
func (r *Recorder) ObserveSample(kind, label string, v float64) {
	r.samples.WithLabelValues(kind, label).Set(v)
}

// ObserveTick records a tick's duration and whether it failed
func (r *Recorder) ObserveTick(kind string, d time.Duration, err error) {
	r.tickDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		r.tickFailures.WithLabelValues(kind).Inc()
	}
}

// IncAlert counts a raised alert
func (r *Recorder) IncAlert(kind string) {
	r.alerts.WithLabelValues(kind).Inc()
}

// IncSinkFailure counts a failed alert write
func (r *Recorder) IncSinkFailure(channel string) {
	r.sinkFailures.WithLabelValues(channel).Inc()
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (r *Recorder) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	log = log.With(logging.Scope("metrics.server"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}
