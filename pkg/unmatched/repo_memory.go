// pkg/unmatched/repo_memory.go
package unmatched

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// MemoryRepository is an in-memory Repository used by tests and dry runs
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.UnmatchedRecord
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]*model.UnmatchedRecord)}
}

// Insert stores a new record
func (r *MemoryRepository) Insert(_ context.Context, rec *model.UnmatchedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Update replaces an existing record
func (r *MemoryRepository) Update(_ context.Context, rec *model.UnmatchedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return ErrNotFound
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns the record with the given id
func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*model.UnmatchedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// FindPendingByKeyHash returns the pending record carrying the given
// match-key hash, if any
func (r *MemoryRepository) FindPendingByKeyHash(_ context.Context, hash string) (*model.UnmatchedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.Status == model.UnmatchedPending && rec.MatchKeyHash == hash {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

// List returns records with the given status (all statuses when empty),
// oldest first
func (r *MemoryRepository) List(_ context.Context, status model.UnmatchedStatus, limit int) ([]*model.UnmatchedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.UnmatchedRecord, 0)
	for _, rec := range r.records {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many records are stored
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func cloneRecord(rec *model.UnmatchedRecord) *model.UnmatchedRecord {
	out := *rec
	out.Payload = make(map[string]string, len(rec.Payload))
	for k, v := range rec.Payload {
		out.Payload[k] = v
	}
	out.AttemptedKeys = append([]string(nil), rec.AttemptedKeys...)
	if rec.ResolvedAt != nil {
		at := *rec.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}
