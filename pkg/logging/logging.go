// Package logging builds the structured loggers used across the proxy.
//
// Logs always go to stderr (or a caller-supplied writer): when the proxy runs
// on the stdio transport, stdout carries the MCP protocol stream.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// New returns a console logger writing to stderr at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(level string) *log.Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(level string, w io.Writer) *log.Logger {
	return &log.Logger{
		Level:      ParseLevel(level),
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:         w,
			EndWithMessage: true,
		},
	}
}

// NewJSON returns a logger emitting one JSON object per line, for log
// collectors when running as an HTTP service.
func NewJSON(level string, w io.Writer) *log.Logger {
	return &log.Logger{
		Level:  ParseLevel(level),
		Writer: &log.IOWriter{Writer: w},
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// IsValidLevel reports whether ParseLevel knows level by name.
func IsValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
