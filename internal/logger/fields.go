package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldTraceID is the trace ID reported by the identification backend
	FieldTraceID = "trace_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the pipeline tier that produced a result
	FieldSource = "source"

	// FieldPhoto is the photo reference being identified
	FieldPhoto = "photo"

	// FieldNamespace is the embedding cache namespace being accessed
	FieldNamespace = "namespace"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldConfidence is a normalized confidence score in [0,1]
	FieldConfidence = "confidence"
)
