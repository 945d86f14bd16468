// pkg/audit/audit_test.go
package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

type failingRepository struct{}

func (failingRepository) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	return errors.New("connection refused")
}

func (failingRepository) Query(ctx context.Context, filter Filter) ([]*model.AuditLogEntry, error) {
	return nil, nil
}

func TestRecordCapturesActorAtWriteTime(t *testing.T) {
	repo := NewMemoryRepository()
	logger := NewLogger(repo, zap.NewNop())
	ctx := context.Background()

	entityID := uuid.New()
	entry := logger.Record(ctx, Entry{
		EntityID:   entityID,
		EntityKind: model.KindEvent,
		Action:     model.ActionUpdate,
		Field:      model.FieldTitle,
		OldValue:   "Pottery",
		NewValue:   "Pottery v2",
		Actor:      model.ActorContext{UserID: "alex", Role: "admin", Scope: "district-4"},
		Source:     model.SourceManual,
	})

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "alex", entry.ActorID)
	assert.Equal(t, "admin", entry.ActorRole)
	assert.Equal(t, "district-4", entry.ActorScope)
	assert.False(t, entry.OccurredAt.IsZero())
	assert.Equal(t, 1, repo.Len())
}

func TestRecordFailureNeverPropagates(t *testing.T) {
	logger := NewLogger(failingRepository{}, zap.NewNop())
	ctx := context.Background()

	entry := logger.Record(ctx, Entry{
		EntityID: uuid.New(),
		Action:   model.ActionCreate,
		Source:   model.SourceImport,
	})

	require.NotNil(t, entry)
	assert.Equal(t, int64(1), logger.Failures())

	logger.Record(ctx, Entry{EntityID: uuid.New(), Action: model.ActionCreate})
	assert.Equal(t, int64(2), logger.Failures())
}

func TestQueryFilters(t *testing.T) {
	repo := NewMemoryRepository()
	logger := NewLogger(repo, zap.NewNop())
	ctx := context.Background()

	target := uuid.New()
	logger.Record(ctx, Entry{EntityID: target, Action: model.ActionCreate, Source: model.SourceImport})
	logger.Record(ctx, Entry{EntityID: target, Action: model.ActionUpdate, Source: model.SourceImport})
	logger.Record(ctx, Entry{EntityID: uuid.New(), Action: model.ActionUpdate, Source: model.SourceManual})

	byEntity, err := logger.Query(ctx, Filter{EntityID: target})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	byAction, err := logger.Query(ctx, Filter{Action: model.ActionUpdate})
	require.NoError(t, err)
	assert.Len(t, byAction, 2)

	bySource, err := logger.Query(ctx, Filter{Source: model.SourceManual})
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	limited, err := logger.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditValueSerialization(t *testing.T) {
	assert.Equal(t, "", model.AuditValue(nil))
	assert.Equal(t, "plain", model.AuditValue("plain"))
	assert.Equal(t, "draft", model.AuditValue(model.Status{Code: model.StatusDraft}))
	assert.Equal(t, "other:limbo", model.AuditValue(model.Status{Code: model.StatusOther, Raw: "limbo"}))
	assert.Equal(t, "teacher", model.AuditValue(model.RoleTeacher))
	assert.Equal(t, "", model.AuditValue(uuid.Nil))

	id := uuid.New()
	assert.Equal(t, id.String(), model.AuditValue(id))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01", model.AuditValue(day))
	assert.Equal(t, "", model.AuditValue(time.Time{}))

	stamp := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T14:30:00Z", model.AuditValue(stamp))
}
