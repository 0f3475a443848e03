// Package logging assembles structured slog loggers and formatting helpers used
// across fission services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code automatically tags log lines
// with project IDs, stages, unit keys, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
