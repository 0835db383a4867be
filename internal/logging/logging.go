// Package logging configures the process-wide structured logger and hands
// out component-scoped children. Everything logs through log/slog so callers
// can swap handlers in tests.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Component names used across the codebase. Keeping them here avoids
// drift between packages that log about the same subsystem.
const (
	CompObject  = "object"
	CompSession = "session"
	CompIndex   = "index"
	CompSync    = "sync"
	CompMemory  = "memory"
	CompCLI     = "cli"
)

// Options controls handler construction in Init.
type Options struct {
	// Level is the minimum level to emit. Defaults to slog.LevelInfo.
	Level slog.Level
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init installs the process-wide default logger. Call once at startup;
// ForComponent picks up whatever Init installed.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// ParseLevel maps a config string to a slog level. Unknown values fall
// back to info rather than failing startup over a typo.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForComponent returns a child logger tagged with the component name.
func ForComponent(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// Discard returns a logger that drops everything. Handy in tests that
// exercise corrupt-data paths and would otherwise spam stderr.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
