// Package img2img talks to the remote stylization endpoint. Each call
// submits one frame plus a prompt and returns the stylized frame bytes.
// Calls are single-shot; retry pacing belongs to the dispatcher, which
// uses the error classification exposed here to decide whether another
// attempt is worthwhile.
package img2img
