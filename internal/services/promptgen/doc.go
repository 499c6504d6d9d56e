// Package promptgen generates scene prompts via an OpenAI-compatible
// chat completion endpoint. It can rewrite the prompt column of a whole
// scene schedule in one request, or produce a fresh prompt for a single
// scene an operator wants reworked.
package promptgen
