package obscura

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/obscura/compute"
	"github.com/gogpu/obscura/internal/gpu"
	"github.com/gogpu/obscura/source"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for obscura and all its sub-packages.
// By default nothing is logged. Pass nil to restore the silent default.
//
// Log levels used by obscura:
//   - [slog.LevelDebug]: per-frame submission, every GPU object created or released
//   - [slog.LevelInfo]: lifecycle events (device opened, resources created,
//     throughput samples, loop end)
//   - [slog.LevelWarn]: non-fatal issues (resolution adjusted by the capture
//     device, teardown with GPU work outstanding)
//
// Example:
//
//	obscura.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	source.SetLogger(l)
	compute.SetLogger(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger used by obscura.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
