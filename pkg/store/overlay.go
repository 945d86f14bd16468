// pkg/store/overlay.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// Overlay layers an in-memory write buffer over a base store. Reads see
// both layers; writes land only in the buffer. Dry-run imports use an
// Overlay so the plan reports the same counts a real run would, while the
// base store sees zero writes.
type Overlay struct {
	base  EntityStore
	local *MemoryStore
	dirty map[uuid.UUID]bool
}

// NewOverlay wraps a base store with a discardable write buffer
func NewOverlay(base EntityStore) *Overlay {
	return &Overlay{
		base:  base,
		local: NewMemoryStore(),
		dirty: make(map[uuid.UUID]bool),
	}
}

// Get fetches from the buffer first, then the base
func (o *Overlay) Get(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	if entity, err := o.local.Get(ctx, id); err == nil {
		return entity, nil
	}
	return o.base.Get(ctx, id)
}

// FindByExternalID consults the buffer, then the base. An entity modified
// in the buffer shadows its base copy even when found through a base index.
func (o *Overlay) FindByExternalID(ctx context.Context, kind model.EntityKind, externalID string) (*model.Entity, error) {
	if entity, err := o.local.FindByExternalID(ctx, kind, externalID); err == nil {
		return entity, nil
	}
	entity, err := o.base.FindByExternalID(ctx, kind, externalID)
	if err != nil {
		return nil, err
	}
	return o.shadow(ctx, entity)
}

// FindByCompositeKey consults the buffer, then the base
func (o *Overlay) FindByCompositeKey(ctx context.Context, kind model.EntityKind, composite string) (*model.Entity, error) {
	if entity, err := o.local.FindByCompositeKey(ctx, kind, composite); err == nil {
		return entity, nil
	}
	entity, err := o.base.FindByCompositeKey(ctx, kind, composite)
	if err != nil {
		return nil, err
	}
	return o.shadow(ctx, entity)
}

// List merges buffered entities over the base listing
func (o *Overlay) List(ctx context.Context, kind model.EntityKind) ([]*model.Entity, error) {
	baseEntities, err := o.base.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	localEntities, err := o.local.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(localEntities))
	out := make([]*model.Entity, 0, len(baseEntities)+len(localEntities))
	for _, e := range localEntities {
		seen[e.ID] = true
		out = append(out, e)
	}
	for _, e := range baseEntities {
		if !seen[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Save writes to the buffer only
func (o *Overlay) Save(ctx context.Context, entity *model.Entity) error {
	if !o.dirty[entity.ID] && entity.Version != 0 {
		// First buffered write of a base entity: seed the buffer copy so
		// the version check applies against what the caller read
		if err := o.local.seedExisting(entity.Clone()); err != nil {
			return err
		}
	}
	if err := o.local.Save(ctx, entity); err != nil {
		return err
	}
	o.dirty[entity.ID] = true
	return nil
}

// shadow returns the buffered copy of a base entity when one exists
func (o *Overlay) shadow(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	if !o.dirty[entity.ID] {
		return entity, nil
	}
	buffered, err := o.local.Get(ctx, entity.ID)
	if errors.Is(err, ErrNotFound) {
		return entity, nil
	}
	return buffered, err
}

// seedExisting places a base entity into the memory store preserving its
// version, so subsequent Save calls version-check correctly
func (s *MemoryStore) seedExisting(entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := entity.Clone()
	s.entities[stored.ID] = stored
	s.addIndexes(stored)
	return nil
}
