package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// serviceName tags every log line so the API and the projectinit CLI can
// share one log stream.
const serviceName = "dreamwright"

// NewLogger constructs the service logger. Development gets debug level and
// human-readable console output; everything else logs structured JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so the rest of the module depends on a local
// name rather than importing the third-party package everywhere.
type Logger = zerolog.Logger
