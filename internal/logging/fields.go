package logging

const (
	// FieldComponent identifies the subsystem emitting a record.
	FieldComponent = "component"
	// FieldEventType is a machine-readable event discriminator.
	FieldEventType = "event_type"
	// FieldErrorHint suggests an operator remedy for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"

	FieldRunID       = "run_id"
	FieldFrame       = "frame_index"
	FieldScene       = "scene_id"
	FieldFingerprint = "fingerprint"
	FieldAttempt     = "attempt"
)
