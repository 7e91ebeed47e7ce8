// Package gwlog is the gateway's leveled logger: a thin wrapper over the
// standard log package tagging every line with its originating component,
// in the "[component] message" style the daemon already uses for its own
// ad-hoc log.Printf calls. Output is routed through a rotating
// lumberjack.Logger once Configure is called with the daemon's LoggingConfig.
package gwlog

import (
	"fmt"
	"log"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level selects which severities are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current = LevelInfo

// SetLevel sets the process-wide minimum severity.
func SetLevel(l Level) { current = l }

// ParseLevel maps a config string ("debug"/"info"/"warn"/"error") to a
// Level, defaulting to LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure sets the process-wide level from level and, when file is
// non-empty, routes all subsequent output through a rotating
// lumberjack.Logger sized by maxSizeMB/maxFiles rather than the default
// stderr writer.
func Configure(level, file string, maxSizeMB, maxFiles int) {
	SetLevel(ParseLevel(level))
	if file == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxFiles,
	})
}

// Logger tags every line it emits with a fixed component name.
type Logger struct {
	component string
}

// For returns a Logger tagged with component, e.g. "correlator", "registry".
func For(component string) Logger { return Logger{component: component} }

func (l Logger) logf(level Level, prefix, format string, v ...any) {
	if current > level {
		return
	}
	log.Printf("[%s] %s%s", l.component, prefix, fmt.Sprintf(format, v...))
}

func (l Logger) Debug(format string, v ...any) { l.logf(LevelDebug, "", format, v...) }
func (l Logger) Info(format string, v ...any)  { l.logf(LevelInfo, "", format, v...) }
func (l Logger) Warn(format string, v ...any)  { l.logf(LevelWarn, "WARNING: ", format, v...) }
func (l Logger) Error(format string, v ...any) { l.logf(LevelError, "ERROR: ", format, v...) }
