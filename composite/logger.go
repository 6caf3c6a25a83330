package composite

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// attribute formatting entirely.
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

// SetLogger installs the package logger. The package is silent until it is
// called; passing nil restores silence. Config.Logger overrides it for a
// single pass.
//
// Levels:
//   - [slog.LevelDebug]: per-phase message counts and byte volumes
//   - [slog.LevelInfo]: one summary per pass on the rank holding the result
//   - [slog.LevelWarn]: patches dropped because they miss the frame
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func (c *Config) logger(rank int) *slog.Logger {
	l := c.Logger
	if l == nil {
		l = Logger()
	}
	return l.With("rank", rank)
}
