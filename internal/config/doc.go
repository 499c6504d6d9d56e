// Package config loads, normalizes, and validates vidstyle's TOML
// configuration. Paths are expanded to absolute form during load so the
// rest of the application never handles tildes or relative directories.
package config
