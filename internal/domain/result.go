package domain

// ResultKind discriminates the identification result union.
// Callers switch on it exhaustively; adding a kind is a reviewed change.
type ResultKind string

const (
	// ResultCatalog means the photo resolved to a concrete catalog machine.
	ResultCatalog ResultKind = "catalog"
	// ResultGenericLabel means a vocabulary label won but maps to no
	// catalog machine; the UI must offer full manual browsing.
	ResultGenericLabel ResultKind = "generic_label"
	// ResultNotGym means the domain classifier rejected the photo.
	ResultNotGym ResultKind = "not_gym"
)

// ResultSource tags which pipeline tier produced a result.
type ResultSource string

const (
	SourceBackendAPI    ResultSource = "backend_api"
	SourceLocalPipeline ResultSource = "local_pipeline"
	SourceFallback      ResultSource = "fallback"
)

// IdentificationResult is the pipeline's sole output, created once per
// request and immutable afterwards. Which fields are meaningful depends
// on Kind:
//   - ResultCatalog: MachineID is the primary pick, Candidates are machine
//     ids ordered for disambiguation.
//   - ResultGenericLabel: LabelID/LabelName identify the winning label,
//     Candidates are label ids of the top-ranked vocabulary entries.
//   - ResultNotGym: only Confidence is set.
//
// Confidence is nil when no real signal backs the result (fallback tier).
type IdentificationResult struct {
	Kind          ResultKind   `json:"kind"`
	MachineID     string       `json:"machine_id,omitempty"`
	LabelID       string       `json:"label_id,omitempty"`
	LabelName     string       `json:"label_name,omitempty"`
	Candidates    []string     `json:"candidates,omitempty"`
	Confidence    *float64     `json:"confidence,omitempty"`
	LowConfidence bool         `json:"low_confidence"`
	Source        ResultSource `json:"source"`
	TraceID       string       `json:"trace_id,omitempty"`
}

// ConfidenceValue returns the confidence or 0 when absent.
func (r *IdentificationResult) ConfidenceValue() float64 {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// NeedsDisambiguation reports whether the UI must force manual selection.
func (r *IdentificationResult) NeedsDisambiguation() bool {
	return r.LowConfidence || r.Kind != ResultCatalog
}

// Float64Ptr is a small helper for building results with literal confidences.
func Float64Ptr(v float64) *float64 {
	return &v
}
