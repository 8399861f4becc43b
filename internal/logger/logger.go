package logger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger: JSON output at the given
// level, pretty console output when debugging.
func Setup(level string, debug bool) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)

	if debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return nil
}

// Get returns the global zerolog logger
func Get() zerolog.Logger {
	return log.Logger
}

// With returns a logger with additional fields
func With(fields ...any) zerolog.Logger {
	return log.Logger.With().Fields(fields).Logger()
}
