// Package logging wraps log/slog construction and shared attribute helpers.
//
// All daemon components receive their logger from here so output format and
// level are decided once, from configuration, and every log line carries a
// component attribute.
package logging
