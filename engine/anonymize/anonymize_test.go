package anonymize

import (
	"strings"
	"testing"

	"github.com/docuchat/docuchat/engine/domain"
)

func ents(text string, surfaces ...[2]string) []domain.Entity {
	var out []domain.Entity
	offset := 0
	for _, s := range surfaces {
		label, surface := s[0], s[1]
		idx := strings.Index(text[offset:], surface)
		if idx < 0 {
			panic("surface not in text: " + surface)
		}
		start := offset + idx
		out = append(out, domain.Entity{Text: surface, Start: start, End: start + len(surface), Label: label})
		offset = start + len(surface)
	}
	return out
}

func TestPseudonymize_Basic(t *testing.T) {
	text := "Anna lives in Berlin. Anna works in Munich."
	entities := ents(text,
		[2]string{"PER", "Anna"},
		[2]string{"LOC", "Berlin"},
		[2]string{"PER", "Anna"},
		[2]string{"LOC", "Munich"},
	)

	m := NewMapping()
	got := Pseudonymize(text, entities, DefaultTracked(), m)

	want := "PER_0 lives in LOC_0. PER_0 works in LOC_1."
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if got.Used["Anna"] != "PER_0" || got.Used["Berlin"] != "LOC_0" || got.Used["Munich"] != "LOC_1" {
		t.Errorf("used mapping = %v", got.Used)
	}
}

func TestPseudonymize_RepeatedSurfaceIsStable(t *testing.T) {
	text := "Anna met Anna."
	entities := ents(text, [2]string{"PER", "Anna"}, [2]string{"PER", "Anna"})

	m := NewMapping()
	got := Pseudonymize(text, entities, DefaultTracked(), m)
	if got.Text != "PER_0 met PER_0." {
		t.Errorf("text = %q", got.Text)
	}
	if m.Len() != 1 {
		t.Errorf("mapping should hold one surface, has %d", m.Len())
	}
}

func TestPseudonymize_CountersPerLabel(t *testing.T) {
	m := NewMapping()
	if p := m.Pseudonym("PER", "Anna"); p != "PER_0" {
		t.Errorf("first PER = %q", p)
	}
	if p := m.Pseudonym("LOC", "Berlin"); p != "LOC_0" {
		t.Errorf("first LOC = %q", p)
	}
	if p := m.Pseudonym("PER", "Bob"); p != "PER_1" {
		t.Errorf("second PER = %q", p)
	}
	if p := m.Pseudonym("LOC", "Munich"); p != "LOC_1" {
		t.Errorf("second LOC = %q", p)
	}
	// Same surface again keeps its pseudonym, counter untouched.
	if p := m.Pseudonym("PER", "Anna"); p != "PER_0" {
		t.Errorf("repeat PER = %q", p)
	}
	if p := m.Pseudonym("PER", "Carol"); p != "PER_2" {
		t.Errorf("third PER = %q", p)
	}
}

func TestPseudonymize_DistinctSurfacesNeverCollide(t *testing.T) {
	m := NewMapping()
	surfaces := []string{"Anna", "Bob", "Carol", "Dave", "Eve"}
	seen := make(map[string]string)
	for _, s := range surfaces {
		p := m.Pseudonym("PER", s)
		if prev, ok := seen[p]; ok {
			t.Fatalf("pseudonym %q assigned to both %q and %q", p, prev, s)
		}
		seen[p] = s
	}
}

func TestPseudonymize_UntrackedLeftVerbatim(t *testing.T) {
	text := "Anna joined Siemens in Berlin."
	entities := ents(text,
		[2]string{"PER", "Anna"},
		[2]string{"ORG", "Siemens"},
		[2]string{"LOC", "Berlin"},
	)

	got := Pseudonymize(text, entities, DefaultTracked(), NewMapping())
	if got.Text != "PER_0 joined Siemens in LOC_0." {
		t.Errorf("text = %q", got.Text)
	}
	if _, ok := got.Used["Siemens"]; ok {
		t.Error("untracked entity must not enter the mapping")
	}
}

func TestPseudonymize_TailPreserved(t *testing.T) {
	text := "In Berlin it rains a lot these days."
	entities := ents(text, [2]string{"LOC", "Berlin"})

	got := Pseudonymize(text, entities, DefaultTracked(), NewMapping())
	if !strings.HasSuffix(got.Text, " it rains a lot these days.") {
		t.Errorf("tail lost: %q", got.Text)
	}
	if !strings.HasPrefix(got.Text, "In LOC_0") {
		t.Errorf("prefix wrong: %q", got.Text)
	}
}

func TestPseudonymize_NoEntities(t *testing.T) {
	text := "Nothing to hide here."
	got := Pseudonymize(text, nil, DefaultTracked(), NewMapping())
	if got.Text != text {
		t.Errorf("text changed: %q", got.Text)
	}
	if len(got.Used) != 0 {
		t.Error("mapping should be empty")
	}
}

func TestPseudonymize_UnsortedEntityInput(t *testing.T) {
	text := "Anna lives in Berlin."
	entities := []domain.Entity{
		{Text: "Berlin", Start: 14, End: 20, Label: "LOC"},
		{Text: "Anna", Start: 0, End: 4, Label: "PER"},
	}
	got := Pseudonymize(text, entities, DefaultTracked(), NewMapping())
	if got.Text != "PER_0 lives in LOC_0." {
		t.Errorf("text = %q", got.Text)
	}
}

func TestPseudonymize_SharedMappingAcrossBlocks(t *testing.T) {
	// One request, two hits referencing the same person.
	m := NewMapping()
	tracked := DefaultTracked()

	first := "Anna lives in Berlin."
	r1 := Pseudonymize(first, ents(first, [2]string{"PER", "Anna"}, [2]string{"LOC", "Berlin"}), tracked, m)

	second := "Anna works in Munich."
	r2 := Pseudonymize(second, ents(second, [2]string{"PER", "Anna"}, [2]string{"LOC", "Munich"}), tracked, m)

	if r1.Used["Anna"] != r2.Used["Anna"] {
		t.Errorf("Anna mapped to %q then %q within one request", r1.Used["Anna"], r2.Used["Anna"])
	}
	if r2.Used["Munich"] != "LOC_1" {
		t.Errorf("Munich = %q, counters must continue across hits", r2.Used["Munich"])
	}
}

func TestPseudonymize_OverlappingSpans(t *testing.T) {
	// Taggers occasionally emit nested or overlapping spans. The earlier
	// span wins; the overlapping one is dropped rather than corrupting
	// the output.
	text := "Anna Schmidt lives in Berlin."
	entities := []domain.Entity{
		{Text: "Anna Schmidt", Start: 0, End: 12, Label: "PER"},
		{Text: "Schmidt", Start: 5, End: 12, Label: "PER"},
		{Text: "Berlin", Start: 22, End: 28, Label: "LOC"},
	}

	got := Pseudonymize(text, entities, DefaultTracked(), NewMapping())
	if got.Text != "PER_0 lives in LOC_0." {
		t.Errorf("text = %q", got.Text)
	}
	if _, ok := got.Used["Schmidt"]; ok {
		t.Error("dropped overlapping span must not enter the mapping")
	}
}

func TestPseudonymize_ShortLabel(t *testing.T) {
	m := NewMapping()
	if p := m.Pseudonym("GPE", "Berlin"); p != "GPE_0" {
		t.Errorf("three-letter label = %q", p)
	}
	if p := m.Pseudonym("LOCATION", "Munich"); p != "LOC_0" {
		t.Errorf("long label should truncate to three letters, got %q", p)
	}
}
