package semantic

import (
	"fmt"

	"github.com/google/uuid"
)

// Record is one section's vector plus the payload retrieval needs without a
// catalog round-trip.
type Record struct {
	SectionID  string
	DocumentID string
	File       string
	Lang       string
	DocIndex   int
	Embedding  []float32
}

// Hit is one vector search result.
type Hit struct {
	SectionID  string  `json:"section_id"`
	DocumentID string  `json:"document_id"`
	File       string  `json:"file"`
	Lang       string  `json:"lang"`
	DocIndex   int     `json:"doc_index"`
	Score      float32 `json:"score"`
}

// PointID derives the deterministic qdrant point id for a section, so
// re-ingesting a section overwrites its previous vector entry.
func PointID(sectionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("section-%s", sectionID))).String()
}
