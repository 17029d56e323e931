// Package debuglog is the debug surface of the filtering runtime: a
// structured logger that is silent until switched on, tagging every entry
// with one of four severities (error, warn, success, info).
//
// Production code paths log through it unconditionally; whether anything is
// written is decided at runtime by Enable.
package debuglog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LevelSuccess sits between info and warn so handlers filtering at info
// still print successful matches.
const LevelSuccess = slog.Level(2)

// Logger wraps a *slog.Logger behind an on/off switch.
type Logger struct {
	enabled atomic.Bool
	logger  *slog.Logger
}

// New creates a Logger writing to l. A nil l uses slog.Default().
func New(l *slog.Logger, enabled bool) *Logger {
	if l == nil {
		l = slog.Default()
	}
	d := &Logger{logger: l}
	d.enabled.Store(enabled)
	return d
}

// Nop returns a disabled Logger.
func Nop() *Logger { return New(nil, false) }

// Enable toggles output.
func (d *Logger) Enable(on bool) {
	if d == nil {
		return
	}
	d.enabled.Store(on)
}

// Enabled reports whether output is switched on.
func (d *Logger) Enabled() bool {
	return d != nil && d.enabled.Load()
}

// With returns a Logger sharing the switch state at call time and carrying
// the given attributes.
func (d *Logger) With(args ...any) *Logger {
	if d == nil {
		return nil
	}
	return New(d.logger.With(args...), d.Enabled())
}

func (d *Logger) Error(msg string, args ...any)   { d.log(slog.LevelError, "error", msg, args) }
func (d *Logger) Warn(msg string, args ...any)    { d.log(slog.LevelWarn, "warn", msg, args) }
func (d *Logger) Success(msg string, args ...any) { d.log(LevelSuccess, "success", msg, args) }
func (d *Logger) Info(msg string, args ...any)    { d.log(slog.LevelInfo, "info", msg, args) }

func (d *Logger) log(level slog.Level, severity, msg string, args []any) {
	if !d.Enabled() {
		return
	}
	d.logger.Log(context.Background(), level, msg, append([]any{"severity", severity}, args...)...)
}

// ReplaceLevel is a slog.HandlerOptions.ReplaceAttr hook that prints
// LevelSuccess as "SUCCESS" instead of "INFO+2".
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSuccess {
		a.Value = slog.StringValue("SUCCESS")
	}
	return a
}
