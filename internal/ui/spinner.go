package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Spinner shows progress on a terminal while a blocking measurement runs.
// It draws nothing unless its Styler is enabled, so redirected output
// stays clean.
type Spinner struct {
	w        io.Writer
	styler   Styler
	message  string
	frames   []string
	interval time.Duration

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	startTime time.Time
}

var defaultFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner drawing message to w
func NewSpinner(w io.Writer, styler Styler, message string) *Spinner {
	return &Spinner{
		w:        w,
		styler:   styler,
		message:  message,
		frames:   defaultFrames,
		interval: 80 * time.Millisecond,
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.styler.Enabled() {
		return
	}
	s.running = true
	s.startTime = time.Now()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.spin(s.stopCh, s.doneCh)
}

func (s *Spinner) spin(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-stopCh:
			fmt.Fprint(s.w, "\r"+strings.Repeat(" ", 60)+"\r")
			return
		case <-ticker.C:
			elapsed := time.Since(s.startTime)
			frame := s.styler.Color(Yellow, s.frames[i%len(s.frames)])
			fmt.Fprintf(s.w, "\r%s %s (%ds)   ", frame, s.message, int(elapsed.Seconds()))
		}
	}
}

// Stop halts the animation and clears the line
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning returns whether the spinner is currently active
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
