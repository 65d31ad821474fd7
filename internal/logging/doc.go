// Package logging provides structured logging for the virtual directory.
//
// # Overview
//
// The logging package provides a structured logging interface with support for:
//
//   - Multiple log levels (debug, info, warn, error)
//   - Text and JSON output formats
//   - Request IDs identifying sync runs and directory operations
//   - Field-based contextual logging
//
// # Creating a Logger
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/vdir/vdir.log",
//	})
//
// Use NewNop in tests and wherever output is not wanted.
//
// # Passing Loggers
//
// Loggers travel with the context instead of living in package state:
//
//	ctx = logging.NewContext(ctx, logger)
//	...
//	logging.FromContext(ctx).Info("loaded source", "source", name, "rows", n)
//
// FromContext never returns nil; without a logger in the context it returns
// a no-op logger.
package logging
