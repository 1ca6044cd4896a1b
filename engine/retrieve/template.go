package retrieve

import "sync"

// DefaultPromptTemplate is the template handed to clients until one is set.
const DefaultPromptTemplate = "Beantworte die Frage ausschließlich anhand des folgenden Kontexts:\n\n{context}\n\nFrage: {question}"

// TemplateStore holds the prompt template returned with every answer.
// Clients fill in {context} and {question} themselves; the engine never
// calls a language model.
type TemplateStore struct {
	mu       sync.RWMutex
	template string
}

// NewTemplateStore returns a store seeded with DefaultPromptTemplate.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{template: DefaultPromptTemplate}
}

// Get returns the current template.
func (s *TemplateStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// Set replaces the template. Empty input resets to the default.
func (s *TemplateStore) Set(template string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if template == "" {
		template = DefaultPromptTemplate
	}
	s.template = template
}
