// Package logging builds the CLI's structured logger: human-readable text on
// stderr, plus an optional rotating JSON log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel is the log level used when not configured.
const DefaultLevel = slog.LevelInfo

// ParseLevel converts a string log level to slog.Level.
// Supported values: "debug", "info", "warn", "error" (case-insensitive).
// Returns (DefaultLevel, false) if the string is not recognized.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// Options configure New.
type Options struct {
	Level slog.Level
	// Format of the stderr stream: "text" (default) or "json".
	Format string
	// File, when set, receives JSON records and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Stderr overrides os.Stderr (tests).
	Stderr io.Writer
}

// New returns a logger and a closer for any file it opened.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}

	var console slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		console = slog.NewTextHandler(w, hopts)
	case "json":
		console = slog.NewJSONHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (use text or json)", opts.Format)
	}
	if opts.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
	handler := slogmulti.Fanout(
		console,
		slog.NewJSONHandler(rotator, hopts),
	)
	return slog.New(handler), rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
