package alert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgecli/hostsentinel/internal/logging"
	"github.com/edgecli/hostsentinel/internal/ui"
)

// TimeLayout is the timestamp format of alert log lines
const TimeLayout = "2006-01-02 15:04:05,000"

const (
	channelFile    = "file"
	channelConsole = "console"
)

// ReportInterval is the minimum time between two failure reports for the
// same channel. A channel that keeps failing and recovering within it is
// still counted but not logged again.
const ReportInterval = time.Minute

// channelState tracks failure episodes of one sink channel
type channelState struct {
	failed     bool
	reported   bool
	lastReport time.Time
}

// FailureCounter counts failed writes per sink channel
type FailureCounter interface {
	IncSinkFailure(channel string)
}

// LogSink appends every event to an alert log as
// "<timestamp> - WARNING - <message>" and prints the message to a console
// writer. Both writes happen under one lock, so concurrent records never
// interleave.
type LogSink struct {
	mu       sync.Mutex
	file     zapcore.Core
	closer   io.Closer
	syncer   zapcore.WriteSyncer
	console  io.Writer
	styler   ui.Styler
	log      *zap.Logger
	failures FailureCounter
	now      func() time.Time

	fileState    channelState
	consoleState channelState
	closed       bool
}

// Option configures a LogSink
type Option func(*LogSink)

// WithLogger sets the operational logger used to report write failures
func WithLogger(log *zap.Logger) Option {
	return func(s *LogSink) {
		s.log = log.With(logging.Scope("alert.sink"))
	}
}

// WithStyler colors console lines
func WithStyler(st ui.Styler) Option {
	return func(s *LogSink) {
		s.styler = st
	}
}

// WithFailureCounter reports failed writes to c
func WithFailureCounter(c FailureCounter) Option {
	return func(s *LogSink) {
		s.failures = c
	}
}

// OpenLogSink opens (creating if needed) the alert log at path in append mode
func OpenLogSink(path string, console io.Writer, opts ...Option) (*LogSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create alert log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert log %s: %w", path, err)
	}
	s := NewLogSink(zapcore.AddSync(f), console, opts...)
	s.closer = f
	return s, nil
}

// NewLogSink builds a sink over an arbitrary log writer
func NewLogSink(w zapcore.WriteSyncer, console io.Writer, opts ...Option) *LogSink {
	s := &LogSink{
		file:    zapcore.NewCore(zapcore.NewConsoleEncoder(lineEncoderConfig()), w, zapcore.WarnLevel),
		syncer:  w,
		console: console,
		styler:  ui.Plain(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lineEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == zapcore.WarnLevel {
		enc.AppendString("WARNING")
		return
	}
	enc.AppendString(l.CapitalString())
}

// Record implements Sink
func (s *LogSink) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	msg := e.Message()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		err := s.file.Write(zapcore.Entry{
			Level:   zapcore.WarnLevel,
			Time:    e.Timestamp,
			Message: msg,
		}, nil)
		// the core only syncs above error level
		if err == nil {
			err = syncLine(s.syncer)
		}
		s.report(channelFile, &s.fileState, err)
	}

	_, err := fmt.Fprintln(s.console, s.styler.Warning(msg))
	s.report(channelConsole, &s.consoleState, err)
}

// syncLine flushes the alert log. Character devices and pipes reject
// fsync with EINVAL; the line has still been written.
func syncLine(w zapcore.WriteSyncer) error {
	if err := w.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}

// report logs the start of a failure episode, at most once per
// ReportInterval, and the recovery of a reported episode
func (s *LogSink) report(channel string, st *channelState, err error) {
	if err != nil {
		if s.failures != nil {
			s.failures.IncSinkFailure(channel)
		}
		if st.failed {
			return
		}
		st.failed = true
		st.reported = false
		now := s.now()
		if st.lastReport.IsZero() || now.Sub(st.lastReport) >= ReportInterval {
			st.reported = true
			st.lastReport = now
			s.log.Error("alert write failed, suppressing further reports until it recovers",
				zap.String("channel", channel), zap.Error(err))
		}
		return
	}
	if st.failed {
		st.failed = false
		if st.reported {
			s.log.Info("alert write recovered", zap.String("channel", channel))
		}
	}
}

// Close flushes and closes the alert log. Later records only reach the console.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// fsync is not supported on every writer (pipes, /dev/stdout)
	_ = s.syncer.Sync()
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("failed to close alert log: %w", err)
		}
	}
	return nil
}
