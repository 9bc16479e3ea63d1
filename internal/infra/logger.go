package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the zerolog root logger shared by the api and worker
// binaries. Development gets a console writer and debug level; everything
// else logs structured JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so the rest of the service depends on one
// logging surface owned by this package.
type Logger = zerolog.Logger
