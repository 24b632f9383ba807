// Package logging configures the process-wide slog logger: a text handler on stderr
// whose level follows the verbose flag, and an optional rotated JSON log file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotated log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Level maps the verbose flag to a slog level
func Level(verbose int) slog.Level {
	if verbose >= 1 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Setup installs the default logger. The returned func closes the log file, if any.
func Setup(console io.Writer, verbose int, file *FileOptions) (func() error, error) {
	if console == nil {
		console = os.Stderr
	}
	level := Level(verbose)
	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	}
	closeFn := func() error { return nil }

	if file != nil && file.Path != "" {
		writer, err := newRotatingWriter(file)
		if err != nil {
			return closeFn, err
		}
		handlers = append(handlers, slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
		closeFn = writer.Close
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = &fanoutHandler{handlers: handlers}
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

func newRotatingWriter(file *FileOptions) (*lumberjack.Logger, error) {
	// lumberjack does not create the directory
	if dir := filepath.Dir(file.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	w := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   file.Compress,
	}
	if file.MaxSizeMB > 0 {
		w.MaxSize = file.MaxSizeMB
	}
	if file.MaxBackups > 0 {
		w.MaxBackups = file.MaxBackups
	}
	if file.MaxAgeDays > 0 {
		w.MaxAge = file.MaxAgeDays
	}
	return w, nil
}

// For returns the default logger tagged with a component name
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// fanoutHandler sends each record to every handler that accepts its level
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
