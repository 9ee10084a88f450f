// Package logging builds the charmbracelet/log loggers used across taskvibe.
package logging

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

type Options struct {
	Level           string
	Format          string
	Prefix          string
	ReportTimestamp bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		Formatter:       ParseFormatter(opts.Format),
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.ReportTimestamp,
	})
}

// Discard is a logger for tests and callers that opt out of logging.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
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

func ParseFormatter(format string) log.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
