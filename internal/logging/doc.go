// Package logging assembles structured slog loggers and formatting helpers used
// across tmbatch.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code can tag log lines with the
// run ID, tomogram ID, and step automatically. The console handler writes a
// compact human-readable line to the terminal while the optional log file
// receives JSON lines for later inspection.
package logging
