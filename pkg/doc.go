// Package pkg provides shared utilities for the usbncm device stack.
//
// It carries two things used by every other package:
//
//   - Structured logging via Go's standard [log/slog] package, tagged with a
//     component attribute
//   - Sentinel errors for endpoint and protocol failures
//
// # Logging
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentNCM, "link up", "interface", 1)
//
// # Errors
//
// Endpoint errors are sentinel values; wrapped errors still match:
//
//	if errors.Is(err, pkg.ErrDisabled) {
//	    // the host disabled the data interface, wait for the link again
//	}
package pkg
