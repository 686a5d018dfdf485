package gfx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// formatting altogether.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by gfx. By default only validation
// warnings and errors are logged, through slog.Default.
// Pass nil to restore the silent default. Safe for concurrent use.
//
// Levels:
//   - [slog.LevelDebug]: per-resource diagnostics and verbose validation output
//   - [slog.LevelInfo]: lifecycle events (adapter selected, swapchain built)
//   - [slog.LevelWarn]: validation warnings, rejected adapters
//   - [slog.LevelError]: validation errors
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// loud returns l, or slog.Default when l is the silent default.
func loud(l *slog.Logger) *slog.Logger {
	if _, silent := l.Handler().(nopHandler); silent {
		return slog.Default()
	}
	return l
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
