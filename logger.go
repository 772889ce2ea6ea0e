package shaderjob

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by the executor and the native
// backend. By default shaderjob produces no log output. Pass nil to restore
// the silent default.
//
// Log levels used by shaderjob:
//   - [slog.LevelDebug]: dispatch details (artifact id, group counts)
//   - [slog.LevelInfo]: the GPU adapter a device was opened on
//   - [slog.LevelWarn]: a runtime extent ignored because its rank differs
//     from the compiled one
//
// SetLogger is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. The native backend shares it.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NopLogger returns a logger that discards everything.
func NopLogger() *slog.Logger { return newNopLogger() }
