package api

// SegmentType is the persisted name of a segment kind.
type SegmentType string

const (
	Protected   SegmentType = "protected"
	Unprotected SegmentType = "unprotected"
	Composite   SegmentType = "composite"
	Appendable  SegmentType = "appendable"
)

// TraceSegment describes one segment of a generated file. Content segments
// store only their length; the text is recovered by slicing the file.
type TraceSegment struct {
	ID     string      `json:"id"`
	Type   SegmentType `json:"type"`
	Length int         `json:"length"`
	// IntegrityCheck marks unprotected segments guarded by Hash.
	IntegrityCheck bool `json:"integrityCheck,omitempty"`
	// Hash of the content as of the last trusted write.
	Hash string `json:"hash,omitempty"`
	// TraceSegments are the children of composite segments, in order.
	TraceSegments []TraceSegment `json:"traceSegments,omitempty"`
}

// ElementTrace lists the segments generated for one model element.
type ElementTrace struct {
	Type     string   `json:"type"`
	Segments []string `json:"segments"`
}

// FileTraces is the `<path>.traces` document stored next to the repository
// index: the model-element map plus the file's segment tree.
type FileTraces struct {
	Traces        map[string]ElementTrace `json:"traces"`
	TraceSegments []TraceSegment          `json:"traceSegments"`
}

// ModelFiles lists the files a model element contributes to.
type ModelFiles struct {
	Files []string `json:"files"`
}

// TracedFiles is the repository index stored at traces/tracedFiles.json.
type TracedFiles struct {
	TracedFiles  []string              `json:"tracedFiles"`
	ModelsToFile map[string]ModelFiles `json:"modelsToFile"`
	// ID of the generation run that wrote the index.
	ID string `json:"id"`
}

// Guidance is one policy rule over the unprotected text of a model type.
type Guidance struct {
	Type    string   `json:"type" yaml:"type"`
	Regex   string   `json:"regex" yaml:"regex"`
	Group   int      `json:"group" yaml:"group"`
	Message string   `json:"message" yaml:"message"`
	Helps   []string `json:"helps,omitempty" yaml:"helps,omitempty"`
}

// GuidanceCatalog is the rule catalog document.
type GuidanceCatalog struct {
	Guidances []Guidance `json:"guidances" yaml:"guidances"`
}
