package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "voice-bridge")
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ForCall derives a call-scoped logger. Empty identifiers are omitted so early
// log lines (before the start frame) stay clean.
func ForCall(l *slog.Logger, callSID, streamSID, tenantID string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	var attrs []any
	if callSID != "" {
		attrs = append(attrs, "call_sid", callSID)
	}
	if streamSID != "" {
		attrs = append(attrs, "stream_sid", streamSID)
	}
	if tenantID != "" {
		attrs = append(attrs, "tenant_id", tenantID)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// ShutdownFlush is a placeholder for future log flushing (if a buffered logger is used).
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
