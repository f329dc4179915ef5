package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/schema"
)

type contextKey int

const (
	tabKey contextKey = iota
	windowKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithTab annotates the logger with the tab id unless the context already carries it.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
		return log
	}
	return log.With("tab", int(tabID))
}

// WithWindow annotates the logger with the window id if present.
func WithWindow(ctx context.Context, windowID schema.WindowID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if windowID == schema.NoWindow {
		return log
	}
	if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == windowID {
		return log
	}
	return log.With("window", int(windowID))
}

// WithTabWindow annotates the logger with window and tab identifiers.
func WithTabWindow(ctx context.Context, tabID schema.TabID, windowID schema.WindowID) pslog.Logger {
	log := WithWindow(ctx, windowID)
	if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
		return log
	}
	return log.With("tab", int(tabID))
}

// WithHost annotates the logger with the host of a stack.
func WithHost(log pslog.Logger, host schema.TabID, guests int) pslog.Logger {
	return log.With("host", int(host), "guests", guests)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, windowID schema.WindowID) context.Context {
	if ctx == nil || windowID == schema.NoWindow {
		return ctx
	}
	return context.WithValue(ctx, windowKey, windowID)
}

// ContextWithTabLogger attaches the logger and tab marker to the context.
func ContextWithTabLogger(ctx context.Context, log pslog.Logger, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ctx, tabID)
}

// ContextWithWindowLogger attaches the logger and window marker to the context.
func ContextWithWindowLogger(ctx context.Context, log pslog.Logger, windowID schema.WindowID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithWindow(ctx, windowID)
}
