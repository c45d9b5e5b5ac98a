// Package logging wraps zerolog into a small process-global structured
// logger shared by every binary, with a correlation-id field that flows
// through to the asynchronous application step.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the process-global logger. Called once from each
// cmd/ main before anything else runs.
func Init(service, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	l := parseLevel(level)
	log = zerolog.New(os.Stdout).Level(l).With().Timestamp().Str("service", service).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// L returns the process-global logger. Call sites that have a request id
// should use L().With().Str("request_id", id).Logger() instead.
func L() *zerolog.Logger {
	return &log
}

// For a correlation id derived from context, see the reqctx package.
func WithRequestID(id string) zerolog.Logger {
	return log.With().Str("request_id", id).Logger()
}
