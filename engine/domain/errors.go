package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's failure taxonomy. Callers classify
// failures with errors.Is against these.
var (
	// ErrEmbedding: model service unavailable or rejected the input.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndex: vector store unreachable or collection missing.
	ErrIndex = errors.New("vector index failure")
	// ErrNotFound: referenced user, document, or section is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation: malformed request parameters.
	ErrValidation = errors.New("invalid request")
	// ErrConsistencyGap: the relational catalog and the vector index
	// disagree, e.g. a vector entry points at a deleted section or a
	// section's vector write failed after its row was persisted.
	// Non-fatal during retrieval, logged and skipped.
	ErrConsistencyGap = errors.New("cross-store consistency gap")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConsistencyGapError records which section's catalog and index entries
// diverged, so operators can reconcile.
type ConsistencyGapError struct {
	DocumentID string
	SectionID  string
	Cause      error
}

func (e *ConsistencyGapError) Error() string {
	return fmt.Sprintf("consistency gap: document=%s section=%s: %v", e.DocumentID, e.SectionID, e.Cause)
}

func (e *ConsistencyGapError) Unwrap() error { return ErrConsistencyGap }
