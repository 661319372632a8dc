package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing fields, propagated through the call chain
// ============================================

const (
	// FieldRequestID is the gateway request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the server assigned bulk job ID
	FieldJobID = "job_id"

	// FieldJobKind is the job family: query or ingest
	FieldJobKind = "job_kind"

	// FieldOperation is the job operation (query, insert, upsert, ...)
	FieldOperation = "operation"

	// FieldObject is the sObject an ingest job writes to
	FieldObject = "object"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// ============================================
// Metric fields (Entry level)
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the payload size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldState is the observed bulk job state
	FieldState = "state"

	// FieldAttempts is the number of status polls issued by a wait
	FieldAttempts = "attempts"
)
