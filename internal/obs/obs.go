// Package obs sets up structured logging for notecache. It mirrors
// allaspectsdev-tokenman's internal/daemon global-logger wiring: a single
// zerolog.Logger configured once at process start and read from package
// level everywhere else, with a console writer for interactive use and
// plain JSON for anything else.
package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	current = zerolog.New(io.Discard).With().Timestamp().Logger()
)

// Options configures Init.
type Options struct {
	// Level is one of trace, debug, info, warn, error, disabled.
	Level string
	// Console writes human-readable colored output to os.Stderr instead of
	// newline-delimited JSON. Meant for interactive CLI use.
	Console bool
	// Writer overrides the destination; defaults to os.Stderr.
	Writer io.Writer
}

// Init installs the process-wide logger. Safe to call more than once, e.g.
// when the CLI reconfigures verbosity after parsing flags.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	current = zerolog.New(w).With().Timestamp().Str("service", "notecache").Logger()
}

// Log returns the current process-wide logger.
func Log() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return &current
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "silent", "none":
		return zerolog.Disabled
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
