// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. format "console" gets the
// human-readable writer; anything else emits JSON lines.
func Setup(level, format string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	logger := zerolog.New(os.Stdout)
	if strings.EqualFold(format, "console") {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	log.Logger = logger.With().Timestamp().Caller().Logger()
}

// parseLevel maps a config string to a zerolog level. Unrecognized
// values fall back to info rather than erroring; a bad log level must
// never stop the service.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

// Get returns a logger tagged with the given component name.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
