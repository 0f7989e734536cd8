// Package logging provides structured logging configuration for interceptd.
//
// This package wraps log/slog to provide consistent logging across all
// interceptd components. It supports configurable log levels and output
// formats.
//
// Components should accept a *slog.Logger in their constructor or via a
// setter. If no logger is provided, use logging.Nop() for a no-op logger.
package logging
