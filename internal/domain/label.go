package domain

// Label is a fixed vocabulary entry describing a class of gym equipment.
// The vocabulary is hand-curated data, independent of the dynamic machine
// catalog; labels without a catalog mapping are still valid and surface as
// generic results.
type Label struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Category    string   `json:"category"`
	PromptText  string   `json:"prompt_text"`
	Synonyms    []string `json:"synonyms,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ReferenceEmbedding is a precomputed embedding of a curated example photo,
// tagged with the label it depicts and optionally the exact catalog machine.
// References only sharpen ranking; the pipeline is correct without them.
type ReferenceEmbedding struct {
	LabelID   string    `json:"label_id"`
	MachineID string    `json:"machine_id,omitempty"`
	Vector    []float32 `json:"vector"`
}

// PhotoRef is an opaque handle to a captured image, owned by the caller.
// URI is a local filesystem path or URI string; the pipeline only reads
// the referenced file and never mutates it.
type PhotoRef struct {
	URI string `json:"uri"`
}
