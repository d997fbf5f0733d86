// Package logging builds the slog loggers used across Carousel.
//
// It centralizes handler construction (console and JSON formats, optional log
// file under the configured log directory), typed attribute helpers, and the
// standardized field names components attach to their log lines. Context
// helpers carry run and stage identity so concurrent tasks produce
// correlatable output.
//
// Construct loggers through New or NewFromConfig so every component shares
// the same format, level handling, and field conventions.
package logging
