// Package logging assembles structured slog loggers and formatting helpers used
// across metaprop services.
//
// It owns the configurable console/JSON handlers, fans output out to several
// sinks (terminal plus a JSON log file) and exposes context-aware helpers so
// enhancement code can automatically tag log lines with record identifiers and
// pass modes. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
