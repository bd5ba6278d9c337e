package logging

// Standardized structured logging keys. Every component logs with these
// constants so console grouping, dedupe, and downstream filtering stay
// consistent.
const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldItemID carries the queue item identifier.
	FieldItemID = "item_id"
	// FieldStage carries the pipeline stage name.
	FieldStage = "stage"
	// FieldLane distinguishes the capture and processing loops.
	FieldLane = "lane"
	// FieldCorrelationID carries request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out.
	FieldAlert = "alert"
	// FieldEventType tags lifecycle events (stage_start, stage_complete, ...).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next operator action after a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the classified failure marker name.
	FieldErrorKind = "error_kind"
	// FieldErrorOperation names the operation that produced an error.
	FieldErrorOperation = "error_operation"
	// FieldDecisionType tags records explaining a runtime decision.
	FieldDecisionType = "decision_type"
	// FieldProgressStage carries the coarse progress stage label.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries fractional progress (0-100).
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries the human progress summary.
	FieldProgressMessage = "progress_message"
	// FieldAttempt carries the 1-based attempt number inside a retry loop.
	FieldAttempt = "attempt"
	// FieldMaxAttempts carries the attempt budget of a retry loop.
	FieldMaxAttempts = "max_attempts"
	// FieldJobID carries the render job identifier assigned by the image service.
	FieldJobID = "job_id"
	// FieldDevice names an audio device.
	FieldDevice = "device"
)
