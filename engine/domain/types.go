// Package domain defines the core entities of the document question-answering
// engine and the validation applied at its entry points.
package domain

import (
	"strings"
	"time"
)

// User owns documents and exactly one vector collection.
type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"auth0_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Lang       string `json:"lang"`
}

// Document is an uploaded file with its extracted text.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	Lang      string    `json:"lang"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"created_at"`
}

// Section is one contiguous chunk of a document's text. Sections of a
// document are strictly ordered by DocIndex.
type Section struct {
	ID         string `json:"id"`
	DocumentID string `json:"document"`
	DocIndex   int    `json:"doc_index"`
	Content    string `json:"content"`
}

// Entity is a recognized named entity with character offsets into the
// annotated text. The JSON keys mirror the upstream tagger output.
type Entity struct {
	Text  string `json:"TEXT"`
	Start int    `json:"START_CHAR"`
	End   int    `json:"END_CHAR"`
	Label string `json:"LABEL"`
}

// Annotation is the linguistic structure of a text: sentence segments in
// order plus recognized entities. Produced by the model service.
type Annotation struct {
	Sentences []string `json:"sentences"`
	Entities  []Entity `json:"entities"`
}

// Fact is one ranked, pseudonymized retrieval result. Never persisted.
type Fact struct {
	Answer           string            `json:"answer"`
	File             string            `json:"file"`
	Score            float32           `json:"score"`
	ContextBefore    string            `json:"context_before"`
	ContextAfter     string            `json:"context_after"`
	Entities         []Entity          `json:"entities"`
	OriginalEntities map[string]string `json:"original_entities"`
}

// Answer is the full response to one question.
type Answer struct {
	Facts          []Fact `json:"facts"`
	PromptTemplate string `json:"prompt_template"`
}

// SupportedLangs enumerates the languages the engine carries taggers for.
var SupportedLangs = map[string]bool{
	"de": true,
	"en": true,
}

// CollectionID derives the per-user vector collection name from the user's
// external identity. Identity providers prefix their ids with "provider|";
// the prefix is stripped so the collection name is stable across providers.
func CollectionID(externalID string) string {
	if i := strings.IndexByte(externalID, '|'); i >= 0 {
		return externalID[i+1:]
	}
	return externalID
}
