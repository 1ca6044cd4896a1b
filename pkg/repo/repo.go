// Package repo defines the generic repository interface the catalog store
// is built on, plus its Neo4j implementation.
package repo

import "context"

// Repository is a generic CRUD interface keyed by ID.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	Find(ctx context.Context, field string, value any) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}
