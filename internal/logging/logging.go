// Package logging wraps the structured logger used across PixelPilot's
// components so every subsystem logs through one configured sink.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	*log.Logger
}

// New creates the root logger, writing to w at the given level.
func New(w io.Writer, level log.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return &Logger{Logger: l}
}

// Default builds a root logger writing to stderr at info level.
func Default() *Logger {
	return New(os.Stderr, log.InfoLevel)
}

// With returns a child logger tagged with a component name, e.g.
// "socket", "idr", "router", "decoder-feed", "presenter".
func (l *Logger) With(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// ParseLevel parses a level name, defaulting to info on an empty string.
func ParseLevel(s string) (log.Level, error) {
	if s == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(s)
}
