// Package logging wraps log/slog with vidstyle's logger construction,
// standardized attribute keys, and console/JSON handlers so components
// emit uniform structured output.
package logging
