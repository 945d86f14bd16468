// pkg/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// MemoryStore is a map-backed EntityStore. It backs the test suite and is
// usable by embedders that keep the entity graph in process.
type MemoryStore struct {
	mu          sync.RWMutex
	entities    map[uuid.UUID]*model.Entity
	byExternal  map[externalKey]uuid.UUID
	byComposite map[compositeKey]uuid.UUID
}

type externalKey struct {
	kind model.EntityKind
	id   string
}

type compositeKey struct {
	kind model.EntityKind
	key  string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    make(map[uuid.UUID]*model.Entity),
		byExternal:  make(map[externalKey]uuid.UUID),
		byComposite: make(map[compositeKey]uuid.UUID),
	}
}

// Get fetches an entity by internal identifier
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entity.Clone(), nil
}

// FindByExternalID looks up the tier-1 exact match key
func (s *MemoryStore) FindByExternalID(ctx context.Context, kind model.EntityKind, externalID string) (*model.Entity, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalKey{kind: kind, id: externalID}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.entities[id].Clone(), nil
}

// FindByCompositeKey looks up the tier-2 fallback key
func (s *MemoryStore) FindByCompositeKey(ctx context.Context, kind model.EntityKind, composite string) (*model.Entity, error) {
	if composite == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byComposite[compositeKey{kind: kind, key: composite}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.entities[id].Clone(), nil
}

// List returns all entities of a kind
func (s *MemoryStore) List(ctx context.Context, kind model.EntityKind) ([]*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Entity, 0)
	for _, entity := range s.entities {
		if entity.Kind == kind {
			out = append(out, entity.Clone())
		}
	}
	return out, nil
}

// Save inserts or version-checks and updates an entity
func (s *MemoryStore) Save(ctx context.Context, entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.entities[entity.ID]
	if exists {
		if existing.Version != entity.Version {
			return ErrVersionConflict
		}
		s.dropIndexes(existing)
	} else if entity.Version != 0 {
		return ErrNotFound
	}

	stored := entity.Clone()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()

	s.entities[stored.ID] = stored
	s.addIndexes(stored)

	// Reflect the committed version back to the caller
	entity.Version = stored.Version
	entity.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) addIndexes(e *model.Entity) {
	if e.ExternalID != "" {
		s.byExternal[externalKey{kind: e.Kind, id: e.ExternalID}] = e.ID
	}
	if key := e.CompositeKey(); key != "" {
		s.byComposite[compositeKey{kind: e.Kind, key: key}] = e.ID
	}
}

func (s *MemoryStore) dropIndexes(e *model.Entity) {
	if e.ExternalID != "" {
		delete(s.byExternal, externalKey{kind: e.Kind, id: e.ExternalID})
	}
	if key := e.CompositeKey(); key != "" {
		delete(s.byComposite, compositeKey{kind: e.Kind, key: key})
	}
}
