// Package logging builds the slog loggers used by the porkbun-ddns command.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level returns the log level for the verbose flag.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New constructs a logger of the given format (human|text|json) and level writing to stderr.
func New(format string, level slog.Leveler) (*slog.Logger, error) {
	return NewWithWriter(format, level, os.Stderr)
}

// NewWithWriter constructs a logger of the given format and level writing to w.
func NewWithWriter(format string, level slog.Leveler, w io.Writer) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "", "human":
		// human output omits timestamps
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: dropTime})), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, errors.New("unsupported log format: " + format)
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

type contextKey struct{}

// WithLogger stores a logger in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the logger stored in ctx, or a human INFO logger writing to stderr.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	l, _ := New("human", slog.LevelInfo)
	return l
}
