// Package logging assembles structured slog loggers used across songfactory.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so runner code tags log lines
// with catalog record ids, external job ids, run ids and the active transport.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
