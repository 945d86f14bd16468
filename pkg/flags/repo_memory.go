// pkg/flags/repo_memory.go
package flags

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// MemoryRepository is an in-memory Repository used by tests and dry runs
type MemoryRepository struct {
	mu    sync.RWMutex
	flags map[uuid.UUID]*model.Flag
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{flags: make(map[uuid.UUID]*model.Flag)}
}

// Insert stores a new flag
func (r *MemoryRepository) Insert(_ context.Context, flag *model.Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[flag.ID] = cloneFlag(flag)
	return nil
}

// Update replaces an existing flag
func (r *MemoryRepository) Update(_ context.Context, flag *model.Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[flag.ID]; !ok {
		return ErrNotFound
	}
	r.flags[flag.ID] = cloneFlag(flag)
	return nil
}

// FindOpen returns the unresolved flag of the given type on an entity
func (r *MemoryRepository) FindOpen(_ context.Context, entityID uuid.UUID, flagType model.FlagType) (*model.Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, flag := range r.flags {
		if flag.EntityID == entityID && flag.Type == flagType && !flag.Resolved() {
			return cloneFlag(flag), nil
		}
	}
	return nil, ErrNotFound
}

// ListOpen returns all unresolved flags on an entity, oldest first
func (r *MemoryRepository) ListOpen(_ context.Context, entityID uuid.UUID) ([]*model.Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Flag, 0)
	for _, flag := range r.flags {
		if flag.EntityID == entityID && !flag.Resolved() {
			out = append(out, cloneFlag(flag))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Len reports how many flags are stored, resolved included
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flags)
}

func cloneFlag(flag *model.Flag) *model.Flag {
	out := *flag
	if flag.ResolvedAt != nil {
		at := *flag.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}
