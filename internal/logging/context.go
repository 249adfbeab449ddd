package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type contextKey int

const (
	recordIDKey contextKey = iota
	modeKey
)

// WithRecordID stores the record identifier for logging helpers.
func WithRecordID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, recordIDKey, id)
}

// WithMode stores the enhancement pass mode for logging helpers.
func WithMode(ctx context.Context, mode string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, modeKey, mode)
}

// RecordIDFromContext returns the record identifier stored in ctx, if any.
func RecordIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(recordIDKey).(string)
	return id, ok && id != ""
}

// WithContext enriches the logger with fields stored on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var attrs []any
	if id, ok := RecordIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRecordID, id))
	}
	if mode, ok := ctx.Value(modeKey).(string); ok && mode != "" {
		attrs = append(attrs, String(FieldMode, mode))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// NewComponentLogger returns a logger tagged with the component name.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	component = strings.TrimSpace(component)
	if component == "" {
		return logger
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning with a standard event/hint/impact triple.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	base := []slog.Attr{String(FieldEventType, eventType)}
	logger.Warn(msg, Args(append(base, attrs...)...)...)
}

// ErrorWithContext logs an error with a standard event/hint/impact triple.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	base := []slog.Attr{String(FieldEventType, eventType)}
	logger.Error(msg, Args(append(base, attrs...)...)...)
}

// NewNop returns a logger that discards all output.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}
