// Package pkg provides shared utilities for the sdspi card driver.
//
// This package contains common functionality used by the bus, card, volume,
// disk and driver layers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for card protocol and volume failures
//   - The [Result] classification of disk I/O outcomes
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentCard, "command", "cmd", 17, "arg", 0x800)
//
// # Errors
//
// Protocol failures are reported as sentinel values and wrapped by the
// higher layers, so they remain testable with [errors.Is]:
//
//	if errors.Is(err, pkg.ErrTokenTimeout) {
//	    // Card never sent the start-of-data token
//	}
package pkg
