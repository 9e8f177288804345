// Package logging provides the slog helpers shared across the engine.
//
// Logging is dependency-injected, never global: every component takes an
// optional *slog.Logger, scopes it once at construction time with
// logger.With("component", ...), and falls back to a discard logger when
// none is provided. Output format, level, and destination belong to the
// embedding application.
//
// Logging is intentionally sparse. Lifecycle boundaries (open, segment
// roll, recovery, close) are the intended log points; the chunk read and
// write paths never log.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. The
// standard pattern for optional logger parameters:
//
//	func New(cfg Config) *Pool {
//		logger := logging.Default(cfg.Logger).With("component", "iopool")
//		...
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
