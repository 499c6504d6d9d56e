// Package services holds shared error classification and context helpers
// for components that call external services.
package services
