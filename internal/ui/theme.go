// Package ui provides terminal styling for console output
package ui

import (
	"os"

	"golang.org/x/term"
)

// ANSI color codes
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
	Green  = "\033[32m"
)

// Styler decorates text with ANSI colors when writing to a terminal
type Styler struct {
	enabled bool
}

// NewStyler enables color when f is a TTY, NO_COLOR is unset
// (https://no-color.org/) and noColor is false.
func NewStyler(f *os.File, noColor bool) Styler {
	if noColor || os.Getenv("NO_COLOR") != "" || f == nil {
		return Styler{}
	}
	return Styler{enabled: term.IsTerminal(int(f.Fd()))}
}

// Plain returns a Styler that never colors
func Plain() Styler {
	return Styler{}
}

// Enabled reports whether colors are emitted
func (s Styler) Enabled() bool {
	return s.enabled
}

// Color wraps text with an ANSI color code
func (s Styler) Color(code, text string) string {
	if !s.enabled {
		return text
	}
	return code + text + Reset
}

// Warning styles an alert line
func (s Styler) Warning(text string) string {
	return s.Color(Bold+Yellow, text)
}

// Status styles a check result as OK or ALERT
func (s Styler) Status(exceeded bool) string {
	if exceeded {
		return s.Color(Red, "ALERT")
	}
	return s.Color(Green, "OK")
}
