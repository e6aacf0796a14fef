package logging

import (
	"context"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	nodeIDKey
	loggerKey
)

// WithSessionIDCtx returns a context carrying the session ID.
func WithSessionIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromCtx returns the session ID carried by ctx, if any.
func SessionIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithNodeIDCtx returns a context carrying the relay node ID.
func WithNodeIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// NodeIDFromCtx returns the node ID carried by ctx, if any.
func NodeIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(nodeIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a context carrying l.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromCtx returns the logger carried by ctx, or nil.
func LoggerFromCtx(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	return l
}

// FromCtx returns the logger carried by ctx. Without one it derives a logger
// from the global logger and the IDs carried by ctx.
func FromCtx(ctx context.Context) *Logger {
	if l := LoggerFromCtx(ctx); l != nil {
		return l
	}
	return applyIDs(ctx, Global())
}

// ContextLogger picks the logger carried by ctx, else base, else the global
// logger, and stamps it with any IDs carried by ctx.
func ContextLogger(ctx context.Context, base *Logger) *Logger {
	l := LoggerFromCtx(ctx)
	if l == nil {
		l = base
	}
	if l == nil {
		l = Global()
	}
	return applyIDs(ctx, l)
}

func applyIDs(ctx context.Context, l *Logger) *Logger {
	if id := NodeIDFromCtx(ctx); id != "" {
		l = l.WithNodeID(id)
	}
	if id := SessionIDFromCtx(ctx); id != "" {
		l = l.WithSessionID(id)
	}
	return l
}

// PropagateIDs copies the node and session IDs set on l into ctx so that
// work started from ctx logs with the same identity.
func PropagateIDs(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}

	l.mu.Lock()
	nodeID := l.nodeID
	sessionID := l.sessionID
	l.mu.Unlock()

	if nodeID != "" {
		ctx = WithNodeIDCtx(ctx, nodeID)
	}
	if sessionID != "" {
		ctx = WithSessionIDCtx(ctx, sessionID)
	}
	return ctx
}
