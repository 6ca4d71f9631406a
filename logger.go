// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for gxm and all its sub-packages.
// By default gxm produces no log output.
//
// SetLogger is safe for concurrent use and takes effect immediately for
// every Renderer created without WithLogger. Pass nil to restore the
// silent default.
//
// Log levels used by gxm:
//   - [slog.LevelDebug]: per-command diagnostics (cache hits, evictions, views)
//   - [slog.LevelInfo]: lifecycle events (backend selected, context created)
//   - [slog.LevelWarn]: degradations (unknown opcode, skipped draw, always-sync fallback)
//
// Example:
//
//	gxm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by gxm.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// globalHandler forwards every record to whatever logger SetLogger
// installed last. Sub-packages receive it at construction, so a later
// SetLogger still reaches them without a propagation step.
type globalHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (g globalHandler) target() slog.Handler {
	h := loggerPtr.Load().Handler()
	for _, op := range g.ops {
		h = op(h)
	}
	return h
}

func (g globalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return loggerPtr.Load().Handler().Enabled(ctx, level)
}

func (g globalHandler) Handle(ctx context.Context, r slog.Record) error {
	return g.target().Handle(ctx, r)
}

func (g globalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return g.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (g globalHandler) WithGroup(name string) slog.Handler {
	return g.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (g globalHandler) with(op func(slog.Handler) slog.Handler) globalHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(g.ops), len(g.ops)+1)
	copy(ops, g.ops)
	return globalHandler{ops: append(ops, op)}
}

// forwardingLogger returns a logger bound to the global logger.
func forwardingLogger() *slog.Logger {
	return slog.New(globalHandler{})
}
