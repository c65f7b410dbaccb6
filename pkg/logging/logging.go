// Package logging configures structured logging for every binary.
//
// Usage:
//
//	logging.Setup(os.Stderr, slog.LevelInfo, logging.FormatText) // colored, via tint
//	logging.Setup(os.Stdout, slog.LevelDebug, logging.FormatJSON)
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats understood by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup installs the default slog logger writing to w at the given level.
// Unknown formats fall back to colored text.
func Setup(w io.Writer, level slog.Level, format string) {
	slog.SetDefault(slog.New(NewHandler(w, level, format)))
}

// NewHandler builds the handler Setup installs.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
	})
}
