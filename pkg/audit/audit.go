// pkg/audit/audit.go
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

// Filter narrows an audit query. Zero values mean "any".
type Filter struct {
	EntityID uuid.UUID
	Action   string
	Source   model.AuditSource
	Limit    int
}

// Repository is the append-only persistence boundary for audit entries
type Repository interface {
	Insert(ctx context.Context, entry *model.AuditLogEntry) error
	Query(ctx context.Context, filter Filter) ([]*model.AuditLogEntry, error)
}

// Entry describes one mutation to record
type Entry struct {
	EntityID   uuid.UUID
	EntityKind model.EntityKind
	Action     string
	Field      string
	OldValue   string
	NewValue   string
	Actor      model.ActorContext
	Source     model.AuditSource
	Notes      string
}

// Logger records audit entries. Writes are best-effort: a failed write is
// logged and counted, never propagated, so an audit-infrastructure fault
// cannot abort the data mutation it describes.
type Logger struct {
	repo     Repository
	logger   *zap.Logger
	failures atomic.Int64
}

// NewLogger creates an audit logger over a repository
func NewLogger(repo Repository, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, logger: logger}
}

// Record appends one audit entry. Actor role and scope are captured here,
// at write time: a scoped administrator's assignments are not re-derivable
// later if they change.
func (l *Logger) Record(ctx context.Context, e Entry) *model.AuditLogEntry {
	entry := &model.AuditLogEntry{
		ID:         uuid.New(),
		EntityID:   e.EntityID,
		EntityKind: e.EntityKind,
		Action:     e.Action,
		Field:      e.Field,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		ActorID:    e.Actor.UserID,
		ActorRole:  e.Actor.Role,
		ActorScope: e.Actor.Scope,
		Source:     e.Source,
		Notes:      e.Notes,
		OccurredAt: time.Now().UTC(),
	}

	if err := l.repo.Insert(ctx, entry); err != nil {
		l.failures.Add(1)
		l.logger.Error("Failed to write audit entry",
			zap.String("entityID", entry.EntityID.String()),
			zap.String("action", entry.Action),
			zap.String("field", entry.Field),
			zap.Error(err))
	}

	return entry
}

// FieldChange records a field-level before/after delta
func (l *Logger) FieldChange(
	ctx context.Context,
	entity *model.Entity,
	field, oldValue, newValue string,
	actor model.ActorContext,
	source model.AuditSource,
) *model.AuditLogEntry {
	return l.Record(ctx, Entry{
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Action:     model.ActionUpdate,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Actor:      actor,
		Source:     source,
	})
}

// Failures reports how many audit writes have failed since construction
func (l *Logger) Failures() int64 {
	return l.failures.Load()
}

// Query exposes the audit trail to reporting views
func (l *Logger) Query(ctx context.Context, filter Filter) ([]*model.AuditLogEntry, error) {
	return l.repo.Query(ctx, filter)
}
