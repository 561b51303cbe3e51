// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a colour tint logger in development and a JSON logger otherwise.
// Colour is only used when color is true, typically when out is a terminal.
func New(out io.Writer, level slog.Level, development, color bool) *slog.Logger {
	if development {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: "Jan 02 15:04:05.000",
			NoColor:    !color,
		}))
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
