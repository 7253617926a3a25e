package models

// ExtractedText is the plain text pulled out of an upload.
type ExtractedText struct {
	Text  string
	Pages int
}

// SummaryResult is what a summarization returns. AudioPath is only set by
// collaborators that synthesize speech; this server never fills it.
type SummaryResult struct {
	Summary   string `json:"summary"`
	AudioPath string `json:"audio,omitempty"`
}
