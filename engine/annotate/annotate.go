// Package annotate talks to the model service that embeds text into vectors
// and produces linguistic annotations (sentence boundaries and named
// entities). The models themselves are a black box behind an HTTP contract;
// this package owns the client, the per-language tagger registry, and the
// annotation cache.
package annotate

import (
	"context"
	"fmt"
	"sort"

	"github.com/docuchat/docuchat/engine/domain"
)

// Embedder turns text into a fixed-dimension vector. The same input always
// yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Annotator produces sentence boundaries and entity spans for a text.
// An Annotator is bound to one language; pick one via the Registry.
type Annotator interface {
	Annotate(ctx context.Context, text string) (*domain.Annotation, error)
}

// Registry maps language codes to their taggers. Adding a language means
// adding an entry, not a new branch.
type Registry struct {
	taggers map[string]Annotator
}

// NewRegistry returns an empty tagger registry.
func NewRegistry() *Registry {
	return &Registry{taggers: make(map[string]Annotator)}
}

// Register binds lang to tagger, replacing any previous binding.
func (r *Registry) Register(lang string, tagger Annotator) {
	r.taggers[lang] = tagger
}

// Lookup returns the tagger for lang.
func (r *Registry) Lookup(lang string) (Annotator, error) {
	tagger, ok := r.taggers[lang]
	if !ok {
		return nil, fmt.Errorf("annotate: no tagger for language %q: %w", lang, domain.ErrValidation)
	}
	return tagger, nil
}

// Langs lists registered language codes in sorted order.
func (r *Registry) Langs() []string {
	out := make([]string, 0, len(r.taggers))
	for lang := range r.taggers {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
