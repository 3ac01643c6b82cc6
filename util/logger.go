// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// sink is the destination shared by a Logger and every logger derived
// from it with [Logger.With], so their lines never interleave.
type sink struct {
	mu         sync.Mutex
	output     io.Writer
	timestamps bool
}

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  It is the observability sink handed to every
// component; nothing in the service logs through a global.
//
// A nil *Logger discards everything.
type Logger struct {
	level  LogLevel
	prefix string
	sink   *sink
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level: LogLevel(verbosity),
		sink: &sink{
			output:     os.Stderr,
			timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
		},
	}
}

// With returns a logger that prepends "prefix: " to every message and
// writes to the same destination as l.
func (l *Logger) With(prefix string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, prefix: l.prefix + prefix + ": ", sink: l.sink}
}

// SetTimestamps enables or disables "15:04:05.000" prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.sink.mu.Lock()
	l.sink.timestamps = on
	l.sink.mu.Unlock()
}

// SetOutput overrides the output writer (default: os.Stderr).  Loggers
// derived with With follow the change.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogQuiet
	}
	return l.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && l.level >= level
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LogQuiet, "ERR", format, args...)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LogNormal, "WRN", format, args...)
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LogNormal, "INF", format, args...)
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.logf(LogVerbose, "VRB", format, args...)
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LogDebug, "DBG", format, args...)
}

// StdLogger returns a *log.Logger whose output is routed through l at
// Verbose level.  Libraries that only accept a standard logger (the
// HTTP/2 server) report through this bridge.
func (l *Logger) StdLogger(prefix string) *log.Logger {
	return log.New(&logWriter{l: l}, prefix, 0)
}

type logWriter struct{ l *Logger }

func (w *logWriter) Write(p []byte) (int, error) {
	w.l.Verbose("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (l *Logger) logf(level LogLevel, tag, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)

	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timestamps {
		fmt.Fprintf(s.output, "%s [%s] %s%s\n", time.Now().Format("15:04:05.000"), tag, l.prefix, msg)
	} else {
		fmt.Fprintf(s.output, "[%s] %s%s\n", tag, l.prefix, msg)
	}
}
