// Package logging configures the process-wide slog logger for indexgen.
// Logs are JSON. The daemon writes them to a size-rotated file under
// ~/.indexgen/logs/ and mirrors them to stderr; one-shot CLI commands log to
// stderr only.
package logging
