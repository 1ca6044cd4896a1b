// Package catalog is the system of record for users, documents and
// sections. The vector index can always be rebuilt from the catalog.
package catalog

import (
	"context"

	"github.com/docuchat/docuchat/engine/domain"
)

// Users manages user rows. Every user is created together with their
// vector collection; the catalog side lives here.
type Users interface {
	Get(ctx context.Context, id string) (domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.User, error)
	Create(ctx context.Context, u domain.User) (domain.User, error)
	SetLang(ctx context.Context, id, lang string) (domain.User, error)
}

// Documents manages document rows.
type Documents interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	Create(ctx context.Context, d domain.Document) (domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// Sections manages section rows. ListByDocument returns sections in
// ascending DocIndex order; that order defines context adjacency.
type Sections interface {
	Get(ctx context.Context, id string) (domain.Section, error)
	CreateBatch(ctx context.Context, sections []domain.Section) ([]domain.Section, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.Section, error)
	// DeleteByDocument removes a document's sections and returns the ids
	// of the removed rows so the caller can purge their vector entries.
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
}

// Store bundles the three catalog repositories.
type Store struct {
	Users     Users
	Documents Documents
	Sections  Sections
}
