// Package logging provides the process-wide slog logger with support for
// runtime reconfiguration (used by the config file watcher).
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the optional file sink.
const (
	fileMaxSizeMB  = 50
	fileMaxBackups = 3
	fileMaxAgeDays = 30
)

// Options describes the desired logging configuration.
type Options struct {
	Level    string
	Format   string
	FilePath string
}

// swappableHandler is a thread-safe slog.Handler delegating to an inner
// handler that can be atomically replaced at runtime.
type swappableHandler struct {
	inner atomic.Pointer[slog.Handler]
}

func newSwappableHandler(h slog.Handler) *swappableHandler {
	s := &swappableHandler{}
	s.inner.Store(&h)
	return s
}

func (s *swappableHandler) swap(h slog.Handler) {
	s.inner.Store(&h)
}

func (s *swappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.inner.Load()).Enabled(ctx, level)
}

func (s *swappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return (*s.inner.Load()).Handle(ctx, r)
}

func (s *swappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return newSwappableHandler((*s.inner.Load()).WithAttrs(attrs))
}

func (s *swappableHandler) WithGroup(name string) slog.Handler {
	return newSwappableHandler((*s.inner.Load()).WithGroup(name))
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	handler  *swappableHandler

	mu     sync.Mutex
	opts   Options
	closer io.Closer // lumberjack writer, if any
}

// NewManager creates a Manager and a ready-to-use logger.
func NewManager(opts Options) (*Manager, *slog.Logger) {
	lvl := &slog.LevelVar{}
	lvl.Set(parseLevel(opts.Level))

	writer, closer := buildWriter(opts.FilePath)
	handler := newSwappableHandler(buildHandler(writer, lvl, opts.Format))

	m := &Manager{
		levelVar: lvl,
		handler:  handler,
		opts:     opts,
		closer:   closer,
	}
	return m, slog.New(handler)
}

// Reconfigure applies new options at runtime. Level-only changes are instant
// via the LevelVar; format or file changes rebuild the handler.
func (m *Manager) Reconfigure(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(parseLevel(opts.Level))

	if opts.Format != m.opts.Format || opts.FilePath != m.opts.FilePath {
		if m.closer != nil {
			m.closer.Close() //nolint:errcheck
			m.closer = nil
		}
		writer, closer := buildWriter(opts.FilePath)
		m.handler.swap(buildHandler(writer, m.levelVar, opts.Format))
		m.closer = closer
	}

	m.opts = opts
}

// Close releases the file writer, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer != nil {
		err := m.closer.Close()
		m.closer = nil
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildWriter returns stdout, or stdout plus a rotated file when a path is
// configured. The lumberjack logger doubles as the closer.
func buildWriter(filePath string) (io.Writer, io.Closer) {
	if filePath == "" {
		return os.Stdout, nil
	}
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
	}
	return io.MultiWriter(os.Stdout, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
