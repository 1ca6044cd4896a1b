package ingest

import (
	"github.com/docuchat/docuchat/engine/domain"
)

// Job is one upload to ingest: the extracted text of one file for one user.
// Text extraction happens at the edge; by the time a Job exists the payload
// is plain text.
type Job struct {
	ExternalID string `json:"user_auth0_id"`
	Filename   string `json:"filename"`
	Text       string `json:"text"`
	FileSize   int64  `json:"file_size"`
}

// BatchResult reports the outcome of a multi-file upload. Files fail
// independently; one bad file never blocks its siblings.
type BatchResult struct {
	Processed []string          `json:"processed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RebuildResult reports what a collection rebuild re-indexed.
type RebuildResult struct {
	Documents int `json:"documents"`
	Sections  int `json:"sections"`
}

// resolved is a Job with its owner loaded.
type resolved struct {
	job  Job
	user domain.User
}

// persisted is a resolved job whose document row exists.
type persisted struct {
	resolved
	doc domain.Document
}

// chunked carries the section contents derived from the document text.
type chunked struct {
	persisted
	contents []string
}

// sectioned carries the persisted section rows.
type sectioned struct {
	persisted
	sections []domain.Section
}

// embedded pairs each section with its vector.
type embedded struct {
	sectioned
	vectors [][]float32
}
