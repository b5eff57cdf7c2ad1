// Package flog is a minimal leveled logger wrapping an io.Writer, in the
// same spirit as golang-dep's own logger: no structured fields, no
// external sink, just prefixed lines a caller can redirect anywhere.
package flog

import (
	"fmt"
	"io"
	"time"
)

// Level is a coarse verbosity level.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled lines to an io.Writer, dropping anything above
// its configured verbosity.
type Logger struct {
	w     io.Writer
	level Level
	now   func() time.Time
}

// New returns a Logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{w: w, level: level, now: time.Now}
}

func (l *Logger) logf(level Level, pkg, format string, args ...interface{}) {
	if level > l.level {
		return
	}
	prefix := level.String()
	if pkg != "" {
		prefix = prefix + " " + pkg
	}
	fmt.Fprintf(l.w, "%s %s: %s\n", l.now().UTC().Format(time.RFC3339), prefix, fmt.Sprintf(format, args...))
}

// Errorf logs at LevelError.
func (l *Logger) Errorf(pkg, format string, args ...interface{}) { l.logf(LevelError, pkg, format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(pkg, format string, args ...interface{}) { l.logf(LevelWarn, pkg, format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(pkg, format string, args ...interface{}) { l.logf(LevelInfo, pkg, format, args...) }

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(pkg, format string, args ...interface{}) { l.logf(LevelDebug, pkg, format, args...) }
