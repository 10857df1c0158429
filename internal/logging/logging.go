package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured JSON logger on stderr.
// If verbose == true, level = Debug, else Info.
func NewLogger(verbose bool) *slog.Logger {
	return New(os.Stderr, verbose)
}

// New is NewLogger with an explicit destination.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With("service", "proxymon")
}

// Discard returns a logger that drops everything, for tests and -once runs
// with stderr closed.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
