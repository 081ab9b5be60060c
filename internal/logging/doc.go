// Package logging builds the slog loggers used by the converter.
//
// Two formats are supported: a compact console format that colours levels
// when writing to a terminal, and JSON lines for machine consumption. Field
// name constants keep attribute keys consistent across packages so that
// warnings about missing exports always carry subject, date and condition.
package logging
