// pkg/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// ErrNotFound is returned when no entity matches a lookup
var ErrNotFound = errors.New("store: entity not found")

// ErrVersionConflict is returned when a save races a concurrent writer on
// the same entity. The caller re-reads and retries; partial field updates
// never interleave.
var ErrVersionConflict = errors.New("store: version conflict")

// EntityStore is the persistence boundary of the pipeline. The surrounding
// application supplies the real implementation; a Postgres one and an
// in-memory one live in this package.
type EntityStore interface {
	// Get fetches an entity by internal identifier
	Get(ctx context.Context, id uuid.UUID) (*model.Entity, error)

	// FindByExternalID looks up the tier-1 exact match key
	FindByExternalID(ctx context.Context, kind model.EntityKind, externalID string) (*model.Entity, error)

	// FindByCompositeKey looks up the tier-2 fallback key
	FindByCompositeKey(ctx context.Context, kind model.EntityKind, composite string) (*model.Entity, error)

	// List returns all entities of a kind, for full sweeps
	List(ctx context.Context, kind model.EntityKind) ([]*model.Entity, error)

	// Save inserts a new entity (Version 0) or updates an existing one
	// with an optimistic version check
	Save(ctx context.Context, entity *model.Entity) error
}
