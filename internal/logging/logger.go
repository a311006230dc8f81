// Package logging provides structured logging shared by every broker component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// globalLogger is the default logger used when a component is constructed without one.
var globalLogger zerolog.Logger //nolint:gochecknoglobals // DI default, mirrors terraform-provider-rtx

func init() {
	globalLogger = New()
}

// New creates a zerolog logger configured from the SSHBROKER_LOG and
// SSHBROKER_LOG_JSON environment variables. Level defaults to info,
// output defaults to a human-readable console writer.
func New() zerolog.Logger {
	level := parseLevel(os.Getenv("SSHBROKER_LOG"))

	var output io.Writer
	if useJSON() {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(raw) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func useJSON() bool {
	if os.Getenv("SSHBROKER_LOG_JSON") == "1" {
		return true
	}

	return os.Getenv("CI") != ""
}

// Global returns the process-wide default logger.
func Global() *zerolog.Logger {
	return &globalLogger
}

// SetGlobal replaces the process-wide default logger, for host applications
// that want to route broker logs through their own sink.
func SetGlobal(logger zerolog.Logger) {
	globalLogger = logger
}

// Component returns a child logger of base tagged with the owning
// component's name. base is used as given; a zero-value base is not
// replaced by the global logger.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
