package logging

import (
	"log/slog"
	"time"
)

// Common field keys used across metaprop logs.
const (
	FieldComponent = "component"
	FieldRecordID  = "record_id"
	FieldMode      = "mode"
	FieldEnhancer  = "enhancer"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldOutcome   = "outcome"
)

// String creates a string attribute.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int creates an int attribute.
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// Bool creates a bool attribute.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration creates a duration attribute.
func Duration(key string, value time.Duration) slog.Attr {
	return slog.Duration(key, value)
}

// Error wraps an error into an attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Args converts attributes into variadic arguments accepted by slog.
func Args(attrs ...slog.Attr) []any {
	out := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		out = append(out, attr)
	}
	return out
}
