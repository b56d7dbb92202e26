package server

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the relay's structured logger. format is "text" or
// "json"; level is one of debug, info, warn, error (info when unknown).
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
