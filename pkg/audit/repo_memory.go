// pkg/audit/repo_memory.go
package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
)

// MemoryRepository keeps audit entries in process. Used by tests and by
// dry-run imports, where audit writes must not persist.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*model.AuditLogEntry
}

// NewMemoryRepository creates an empty in-memory audit repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Insert appends an entry
func (r *MemoryRepository) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

// Query returns entries matching the filter in append order
func (r *MemoryRepository) Query(ctx context.Context, filter Filter) ([]*model.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AuditLogEntry, 0)
	for _, entry := range r.entries {
		if filter.EntityID != uuid.Nil && entry.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Source != "" && entry.Source != filter.Source {
			continue
		}
		clone := *entry
		out = append(out, &clone)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the total number of entries recorded
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
