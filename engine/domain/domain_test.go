package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCollectionID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"auth0|64fa12bc", "64fa12bc"},
		{"google-oauth2|10934", "10934"},
		{"plainid", "plainid"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CollectionID(tt.in); got != tt.want {
			t.Errorf("CollectionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion("auth0|1", "Where does Anna live?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateQuestion("auth0|1", "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank question, got %v", err)
	}
	if err := ValidateQuestion("", "q"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty user, got %v", err)
	}
}

func TestValidateUpload(t *testing.T) {
	if err := ValidateUpload("auth0|1", "a.txt", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateUpload("auth0|1", "", "text"); !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation for empty filename")
	}
	if err := ValidateUpload("auth0|1", "a.txt", ""); !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation for empty text")
	}
}

func TestValidateUser(t *testing.T) {
	u := User{ExternalID: "auth0|1", Username: "anna", Lang: "de"}
	if err := ValidateUser(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u.Lang = "fr"
	if err := ValidateUser(u); !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation for unsupported language")
	}
}

func TestConsistencyGapError(t *testing.T) {
	err := &ConsistencyGapError{DocumentID: "d1", SectionID: "s1", Cause: errors.New("row gone")}
	if !errors.Is(err, ErrConsistencyGap) {
		t.Error("ConsistencyGapError should unwrap to ErrConsistencyGap")
	}
}

func TestAnswerWireShape(t *testing.T) {
	a := Answer{
		Facts: []Fact{{
			Answer:           "PER_0 lives in LOC_0.",
			File:             "a.txt",
			Score:            0.42,
			Entities:         []Entity{{Text: "Anna", Start: 0, End: 4, Label: "PER"}},
			OriginalEntities: map[string]string{"Anna": "PER_0"},
		}},
		PromptTemplate: "Answer using {context}.",
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["facts"]; !ok {
		t.Error("missing facts key")
	}
	if _, ok := m["prompt_template"]; !ok {
		t.Error("missing prompt_template key")
	}
	fact := m["facts"].([]any)[0].(map[string]any)
	for _, key := range []string{"answer", "file", "score", "entities", "original_entities"} {
		if _, ok := fact[key]; !ok {
			t.Errorf("fact missing %q key", key)
		}
	}
	ent := fact["entities"].([]any)[0].(map[string]any)
	for _, key := range []string{"TEXT", "START_CHAR", "END_CHAR", "LABEL"} {
		if _, ok := ent[key]; !ok {
			t.Errorf("entity missing %q key", key)
		}
	}
}
