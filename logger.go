package main

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates the process logger. "pretty" writes human-readable
// console output, anything else writes JSON lines.
func NewLogger(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Str("service", "room-relay").
		Logger()
}

// recoverPanic logs a recovered panic with its stack and reports whether one
// occurred. Call it directly from a deferred function.
func recoverPanic(logger zerolog.Logger, r any, where string) bool {
	if r == nil {
		return false
	}
	logger.Error().
		Str("goroutine", where).
		Interface("panic_value", r).
		Str("stack_trace", string(debug.Stack())).
		Msg("Panic recovered")
	return true
}
