// Package logging provides structured logging using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to output, e.g. "debug" or "info".
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output.
	Pretty bool
}

// Init initializes the global logger.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel parses a level string, case-insensitive. Unrecognized values
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ForIdentity returns a child logger tagged with the session identity.
// Every per-session component logs through one of these.
func ForIdentity(identity string) zerolog.Logger {
	return Logger.With().Str("identity", identity).Logger()
}

// Debug starts a debug level message on the global logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info level message on the global logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn level message on the global logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error level message on the global logger.
func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a fatal level message; Msg/Send exits the process.
func Fatal() *zerolog.Event { return Logger.Fatal() }

func init() {
	Init(Config{})
}
