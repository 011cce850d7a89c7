// Package logger builds the process-wide zerolog root logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// New constructs the root logger. The level comes from LOG_LEVEL and falls
// back to debug.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.DebugLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}

var Module = fx.Provide(New)
