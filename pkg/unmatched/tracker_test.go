// pkg/unmatched/tracker_test.go
package unmatched

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/store"
)

func newTestTracker(t *testing.T) (*Tracker, *MemoryRepository, *store.MemoryStore, *audit.MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	entities := store.NewMemoryStore()
	auditRepo := audit.NewMemoryRepository()
	auditor := audit.NewLogger(auditRepo, zap.NewNop())
	tracker := NewTracker(repo, entities, auditor, zap.NewNop())
	return tracker, repo, entities, auditRepo
}

func sourceRecord(seq int, values map[string]string) model.Record {
	return model.Record{BatchID: uuid.New(), Seq: seq, Values: values}
}

func eventKey(title, date string) model.MatchKey {
	return model.MatchKey{Kind: model.KindEvent, Composite: title + "|" + date}
}

func TestRecordCreatesPendingEntry(t *testing.T) {
	tracker, repo, _, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.Record(ctx,
		sourceRecord(3, map[string]string{"title": "Pottery", "teacher": "nobody"}),
		model.UnmatchedTarget,
		eventKey("pottery", "2026-03-01"))
	require.NoError(t, err)

	assert.Equal(t, model.UnmatchedPending, rec.Status)
	assert.Equal(t, model.UnmatchedTarget, rec.Kind)
	assert.Equal(t, "Pottery", rec.Payload["title"])
	assert.NotEmpty(t, rec.MatchKeyHash)
	assert.Equal(t, 1, repo.Len())
}

func TestRecordDeduplicatesPendingByMatchKey(t *testing.T) {
	tracker, repo, _, _ := newTestTracker(t)
	ctx := context.Background()

	first, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"title": "Pottery"}),
		model.UnmatchedSubject,
		eventKey("pottery", "2026-03-01"))
	require.NoError(t, err)

	// Same stale row arrives again in a later batch: the pending entry is
	// refreshed, not duplicated.
	second, err := tracker.Record(ctx,
		sourceRecord(9, map[string]string{"title": "Pottery", "notes": "retry"}),
		model.UnmatchedSubject,
		eventKey("pottery", "2026-03-01"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, 9, second.Seq)
	assert.Equal(t, "retry", second.Payload["notes"])
}

func TestRecordKeylessRowsStayDistinct(t *testing.T) {
	tracker, repo, _, _ := newTestTracker(t)
	ctx := context.Background()

	// Two different rows, neither carrying an external ID or a composite
	// key. Each must keep its own pending record.
	first, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"date": "2026-01-01"}),
		model.UnmatchedSubject,
		model.MatchKey{Kind: model.KindEvent})
	require.NoError(t, err)

	second, err := tracker.Record(ctx,
		sourceRecord(2, map[string]string{"date": "2026-02-02"}),
		model.UnmatchedSubject,
		model.MatchKey{Kind: model.KindEvent})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, "2026-01-01", first.Payload["date"])
	assert.Equal(t, "2026-02-02", second.Payload["date"])

	// A byte-identical keyless row still refreshes rather than duplicates
	again, err := tracker.Record(ctx,
		sourceRecord(7, map[string]string{"date": "2026-01-01"}),
		model.UnmatchedSubject,
		model.MatchKey{Kind: model.KindEvent})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestRecordAfterIgnoreCreatesFreshEntry(t *testing.T) {
	tracker, repo, _, _ := newTestTracker(t)
	ctx := context.Background()

	first, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"title": "Pottery"}),
		model.UnmatchedSubject,
		eventKey("pottery", "2026-03-01"))
	require.NoError(t, err)
	require.NoError(t, tracker.Ignore(ctx, first.ID, model.ActorContext{UserID: "admin"}, "junk row"))

	// Dedupe only collapses into pending entries; a reviewed record stays
	// closed and the re-import opens a new one.
	second, err := tracker.Record(ctx,
		sourceRecord(2, map[string]string{"title": "Pottery"}),
		model.UnmatchedSubject,
		eventKey("pottery", "2026-03-01"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestResolveLinksEntityAndAudits(t *testing.T) {
	tracker, _, entities, auditRepo := newTestTracker(t)
	ctx := context.Background()

	target := model.NewEntity(model.KindPerson)
	target.Name = "Dana Reyes"
	require.NoError(t, entities.Save(ctx, target))

	rec, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"teacher": "D. Reyes"}),
		model.UnmatchedTarget,
		model.MatchKey{Kind: model.KindPerson, Composite: "d. reyes"})
	require.NoError(t, err)

	actor := model.ActorContext{UserID: "coordinator-1", Role: "coordinator"}
	require.NoError(t, tracker.Resolve(ctx, rec.ID, target.ID, actor, "same person"))

	stored, err := tracker.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnmatchedResolved, stored.Status)
	assert.Equal(t, target.ID, stored.ResolvedEntityID)
	assert.Equal(t, "coordinator-1", stored.ResolvedBy)
	require.NotNil(t, stored.ResolvedAt)

	entries, err := auditRepo.Query(ctx, audit.Filter{Action: model.ActionResolveUnmatched})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "coordinator-1", entries[0].ActorID)
}

func TestResolveRejectsUnknownEntity(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"teacher": "x"}),
		model.UnmatchedTarget,
		model.MatchKey{Kind: model.KindPerson, Composite: "x"})
	require.NoError(t, err)

	err = tracker.Resolve(ctx, rec.ID, uuid.New(), model.SystemActor, "")
	require.Error(t, err)

	stored, err := tracker.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnmatchedPending, stored.Status)
}

func TestResolveRejectsReviewedRecord(t *testing.T) {
	tracker, _, entities, _ := newTestTracker(t)
	ctx := context.Background()

	target := model.NewEntity(model.KindPerson)
	require.NoError(t, entities.Save(ctx, target))

	rec, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"teacher": "x"}),
		model.UnmatchedTarget,
		model.MatchKey{Kind: model.KindPerson, Composite: "x"})
	require.NoError(t, err)

	actor := model.ActorContext{UserID: "admin"}
	require.NoError(t, tracker.Ignore(ctx, rec.ID, actor, "noise"))

	err = tracker.Resolve(ctx, rec.ID, target.ID, actor, "")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestBulkIgnoreHonorsCap(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t)
	tracker.WithBulkIgnoreCap(3)
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		rec, err := tracker.Record(ctx,
			sourceRecord(i, map[string]string{"title": "noise"}),
			model.UnmatchedSubject,
			model.MatchKey{Kind: model.KindEvent, Composite: uuid.NewString()})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	processed, err := tracker.BulkIgnore(ctx, ids, model.ActorContext{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	pending, err := tracker.List(ctx, model.UnmatchedPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestBulkIgnoreSkipsNonPending(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{"title": "noise"}),
		model.UnmatchedSubject,
		model.MatchKey{Kind: model.KindEvent, Composite: "noise|2026-01-01"})
	require.NoError(t, err)

	actor := model.ActorContext{UserID: "admin"}
	require.NoError(t, tracker.Ignore(ctx, rec.ID, actor, "first pass"))

	processed, err := tracker.BulkIgnore(ctx, []uuid.UUID{rec.ID, uuid.New()}, actor)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

func TestSuggestFindsCandidatesByEmail(t *testing.T) {
	tracker, _, entities, _ := newTestTracker(t)
	ctx := context.Background()

	person := model.NewEntity(model.KindPerson)
	person.Name = "Dana Reyes"
	person.Email = "dana@example.org"
	require.NoError(t, entities.Save(ctx, person))

	rec, err := tracker.Record(ctx,
		sourceRecord(1, map[string]string{
			"name":    "D. Reyes",
			"contact": "Dana@Example.org",
		}),
		model.UnmatchedSubject,
		model.MatchKey{Kind: model.KindPerson, Composite: "d. reyes"})
	require.NoError(t, err)

	candidates, err := tracker.Suggest(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, person.ID, candidates[0].ID)

	// A suggestion never mutates the record
	stored, err := tracker.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnmatchedPending, stored.Status)
	assert.Equal(t, uuid.Nil, stored.ResolvedEntityID)
}
