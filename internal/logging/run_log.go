package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

// RunLog is a per-run JSON log file. Every record emitted through Logger also
// reaches the base logger it was opened from.
type RunLog struct {
	Path   string
	Logger *slog.Logger
	closer io.Closer
}

// OpenRunLog creates (or appends to) dir/<runID>.log. The file records debug
// and above regardless of the base logger's level.
func OpenRunLog(base *slog.Logger, dir, runID string) (*RunLog, error) {
	if dir == "" || runID == "" {
		return nil, fmt.Errorf("run log: directory and run id are required")
	}
	path := filepath.Join(dir, runID+".log")
	file, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{newJSONHandler(file, slog.LevelDebug, false)}
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, handlers...)
	}
	return &RunLog{
		Path:   path,
		Logger: slog.New(teeHandler(handlers)),
		closer: file,
	}, nil
}

// Close releases the underlying file.
func (r *RunLog) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// teeHandler hands each record to every handler whose level admits it.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
