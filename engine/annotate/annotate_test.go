package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docuchat/docuchat/engine/domain"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	de := &staticAnnotator{}
	en := &staticAnnotator{}
	reg.Register("de", de)
	reg.Register("en", en)

	got, err := reg.Lookup("de")
	if err != nil || got != Annotator(de) {
		t.Fatalf("Lookup(de) = (%v, %v)", got, err)
	}

	if _, err := reg.Lookup("fr"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown language should yield ErrValidation, got %v", err)
	}

	langs := reg.Langs()
	if len(langs) != 2 || langs[0] != "de" || langs[1] != "en" {
		t.Errorf("Langs = %v", langs)
	}
}

type staticAnnotator struct {
	ann   *domain.Annotation
	err   error
	calls int
}

func (s *staticAnnotator) Annotate(context.Context, string) (*domain.Annotation, error) {
	s.calls++
	return s.ann, s.err
}

func TestCached_HitsSkipTagger(t *testing.T) {
	inner := &staticAnnotator{ann: &domain.Annotation{Sentences: []string{"Hello."}}}
	cached := Cached(inner, NewMemoryCache(), "en")

	ctx := context.Background()
	first, err := cached.Annotate(ctx, "Hello.")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cached.Annotate(ctx, "Hello.")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("tagger called %d times, want 1", inner.calls)
	}
	if len(first.Sentences) != 1 || len(second.Sentences) != 1 {
		t.Error("annotation lost through cache")
	}

	// Different text misses the cache.
	if _, err := cached.Annotate(ctx, "Bye."); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("tagger called %d times after new text, want 2", inner.calls)
	}
}

func TestCached_ErrorNotCached(t *testing.T) {
	inner := &staticAnnotator{err: errors.New("down")}
	cached := Cached(inner, NewMemoryCache(), "en")
	if _, err := cached.Annotate(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	inner.ann = &domain.Annotation{}
	if _, err := cached.Annotate(context.Background(), "x"); err != nil {
		t.Fatalf("recovered tagger should answer: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("failed annotation must not be cached, calls = %d", inner.calls)
	}
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "multi-qa-MiniLM-L6-cos-v1" || req.Text != "Where does Anna live?" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(embedResponse{Vector: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "multi-qa-MiniLM-L6-cos-v1")
	vec, err := c.Embed(context.Background(), "Where does Anna live?")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
}

func TestClient_EmbedEmptyInput(t *testing.T) {
	c := NewClient("http://unreachable", "m")
	if _, err := c.Embed(context.Background(), ""); !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("empty input should yield ErrEmbedding, got %v", err)
	}
}

func TestClient_EmbedServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m")
	if _, err := c.Embed(context.Background(), "hi"); !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("service failure should yield ErrEmbedding, got %v", err)
	}
}

func TestClient_Tagger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/annotate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req annotateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Lang != "de" {
			t.Errorf("lang = %s", req.Lang)
		}
		json.NewEncoder(w).Encode(domain.Annotation{
			Sentences: []string{"Anna wohnt in Berlin."},
			Entities: []domain.Entity{
				{Text: "Anna", Start: 0, End: 4, Label: "PER"},
				{Text: "Berlin", Start: 14, End: 20, Label: "LOC"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m")
	ann, err := c.Tagger("de").Annotate(context.Background(), "Anna wohnt in Berlin.")
	if err != nil {
		t.Fatal(err)
	}
	if len(ann.Sentences) != 1 || len(ann.Entities) != 2 {
		t.Errorf("annotation = %+v", ann)
	}
	if ann.Entities[1].Label != "LOC" {
		t.Errorf("entity label = %s", ann.Entities[1].Label)
	}
}
