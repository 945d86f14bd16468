// pkg/importer/importer_test.go
package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/flags"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/resolver"
	"github.com/classbridge/roster-import/pkg/source"
	"github.com/classbridge/roster-import/pkg/store"
	"github.com/classbridge/roster-import/pkg/unmatched"
)

type fixture struct {
	importer      *Importer
	entities      *store.MemoryStore
	auditRepo     *audit.MemoryRepository
	unmatchedRepo *unmatched.MemoryRepository
	flagRepo      *flags.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		entities:      store.NewMemoryStore(),
		auditRepo:     audit.NewMemoryRepository(),
		unmatchedRepo: unmatched.NewMemoryRepository(),
		flagRepo:      flags.NewMemoryRepository(),
	}
	f.importer = New(f.entities, f.auditRepo, f.unmatchedRepo, f.flagRepo, zap.NewNop())
	return f
}

// noFlags keeps scenario counts focused on resolution outcomes
var noFlags = Options{Skip: []string{StepFlags}}

var sessionRow = map[string]string{
	"Session ID": "S100",
	"Title":      "Data Day",
	"Date":       "2026-03-01",
	"Status":     "Draft",
}

func TestFirstImportCreatesSession(t *testing.T) {
	f := newFixture(t)
	src := source.NewMemorySource("roster.csv", []map[string]string{sessionRow})

	summary, err := f.importer.Run(context.Background(), src, noFlags)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RowsRead)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Errored)
	assert.Equal(t, "roster.csv", summary.Source)

	entity, err := f.entities.FindByExternalID(context.Background(), model.KindEvent, "S100")
	require.NoError(t, err)
	assert.Equal(t, "Data Day", entity.Title)
	assert.Equal(t, model.StatusDraft, entity.Status.Code)
	assert.Equal(t, summary.BatchID, entity.SourceBatchID)
	assert.Equal(t, "import", entity.ImportSource)
}

func TestReimportUnchangedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	src := source.NewMemorySource("roster.csv", []map[string]string{sessionRow})
	ctx := context.Background()

	_, err := f.importer.Run(ctx, src, noFlags)
	require.NoError(t, err)
	auditBefore := f.auditRepo.Len()

	second, err := f.importer.Run(ctx, src, noFlags)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, auditBefore, f.auditRepo.Len(), "re-import must write zero new audit entries")
}

func TestImportRefreshesChangedImportOwnedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.importer.Run(ctx,
		source.NewMemorySource("v1.csv", []map[string]string{sessionRow}), noFlags)
	require.NoError(t, err)

	updated := map[string]string{
		"Session ID": "S100",
		"Title":      "Data Day",
		"Date":       "2026-03-01",
		"Status":     "Published",
	}
	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("v2.csv", []map[string]string{updated}), noFlags)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	entity, err := f.entities.FindByExternalID(ctx, model.KindEvent, "S100")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, entity.Status.Code)
}

func TestManualOverridePreserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{sessionRow}), noFlags)
	require.NoError(t, err)

	entity, err := f.entities.FindByExternalID(ctx, model.KindEvent, "S100")
	require.NoError(t, err)

	auditor := audit.NewLogger(f.auditRepo, zap.NewNop())
	res := resolver.New(f.entities, resolver.DefaultStrategies(f.entities), auditor, zap.NewNop())
	editor := model.ActorContext{UserID: "coordinator-1", Role: "coordinator"}
	_, err = res.ApplyManualEdit(ctx, entity.ID, model.FieldTitle, "Data & Analytics Day", editor)
	require.NoError(t, err)

	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{sessionRow}), noFlags)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)

	entity, err = f.entities.FindByExternalID(ctx, model.KindEvent, "S100")
	require.NoError(t, err)
	assert.Equal(t, "Data & Analytics Day", entity.Title, "manual title must survive re-import")
}

func TestCompositeMatchBackfillsExternalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Entity predates external ids
	legacy := model.NewEntity(model.KindEvent)
	legacy.Title = "Data Day"
	legacy.Date = mustDate(t, "2026-03-01")
	require.NoError(t, f.entities.Save(ctx, legacy))

	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{sessionRow}), noFlags)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)

	healed, err := f.entities.FindByExternalID(ctx, model.KindEvent, "S100")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, healed.ID)
}

func TestUnknownTeacherGoesToReviewQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row := map[string]string{
		"Session ID": "S200",
		"Title":      "Pottery",
		"Date":       "2026-04-01",
		"Teacher":    "Nobody Known",
	}
	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{row}), noFlags)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 0, summary.Created, "no placeholder person or session is fabricated")

	pending, err := f.unmatchedRepo.List(ctx, model.UnmatchedPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.UnmatchedTarget, pending[0].Kind)
	assert.Equal(t, "Pottery", pending[0].Payload["title"])

	people, err := f.entities.List(ctx, model.KindPerson)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestPersonRowThenSessionRowLinkTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows := []map[string]string{
		{
			"Volunteer ID": "P10",
			"Name":         "Dana Reyes",
			"Email":        "dana@example.org",
			"Role":         "Teacher",
		},
		{
			"Session ID":    "S300",
			"Title":         "Weaving",
			"Date":          "2026-05-01",
			"Teacher Email": "dana@example.org",
		},
	}
	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", rows), noFlags)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Unmatched)

	teacher, err := f.entities.FindByExternalID(ctx, model.KindPerson, "P10")
	require.NoError(t, err)
	session, err := f.entities.FindByExternalID(ctx, model.KindEvent, "S300")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, session.TeacherID)
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opts := noFlags
	opts.DryRun = true
	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{sessionRow}), opts)
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Created, "dry run reports the same counts as a real run")

	events, err := f.entities.List(ctx, model.KindEvent)
	require.NoError(t, err)
	assert.Empty(t, events, "dry run must not persist entities")
	assert.Equal(t, 0, f.auditRepo.Len(), "dry run must not persist audit entries")
}

func TestRowLimitStopsReading(t *testing.T) {
	f := newFixture(t)

	rows := []map[string]string{
		{"Session ID": "S1", "Title": "A", "Date": "2026-03-01"},
		{"Session ID": "S2", "Title": "B", "Date": "2026-03-02"},
		{"Session ID": "S3", "Title": "C", "Date": "2026-03-03"},
	}
	opts := noFlags
	opts.Limit = 2
	summary, err := f.importer.Run(context.Background(),
		source.NewMemorySource("roster.csv", rows), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsRead)
	assert.Equal(t, 2, summary.Created)
}

func TestRowErrorsAggregateAndBatchContinues(t *testing.T) {
	f := newFixture(t)

	rows := []map[string]string{
		{"Session ID": "S1", "Title": "A", "Date": "not a date"},
		{"Session ID": "S2", "Title": "B", "Date": "2026-03-02"},
	}
	summary, err := f.importer.Run(context.Background(),
		source.NewMemorySource("roster.csv", rows), noFlags)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.ErrorCounts[ErrorCategoryNormalization])
	require.NotEmpty(t, summary.ErrorSamples[ErrorCategoryNormalization])
	assert.Equal(t, 1, summary.ErrorSamples[ErrorCategoryNormalization][0].Seq)
}

func TestFailFastAbortsOnFirstRowError(t *testing.T) {
	f := newFixture(t)

	rows := []map[string]string{
		{"Session ID": "S1", "Title": "A", "Date": "not a date"},
		{"Session ID": "S2", "Title": "B", "Date": "2026-03-02"},
	}
	opts := noFlags
	opts.FailFast = true
	summary, err := f.importer.Run(context.Background(),
		source.NewMemorySource("roster.csv", rows), opts)
	require.Error(t, err)

	assert.Equal(t, 1, summary.RowsRead)
	assert.Equal(t, 0, summary.Created)
}

func TestOnlyStepSkipsOtherKinds(t *testing.T) {
	f := newFixture(t)

	rows := []map[string]string{
		sessionRow,
		{"Name": "Dana Reyes", "Email": "dana@example.org", "Role": "Volunteer"},
	}
	opts := Options{Only: []string{StepSessions}}
	summary, err := f.importer.Run(context.Background(),
		source.NewMemorySource("roster.csv", rows), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Skipped)

	people, err := f.entities.List(context.Background(), model.KindPerson)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestUnroutableRowIsCountedAndSkipped(t *testing.T) {
	f := newFixture(t)

	rows := []map[string]string{
		{"foo": "bar", "baz": "qux"},
		sessionRow,
	}
	summary, err := f.importer.Run(context.Background(),
		source.NewMemorySource("roster.csv", rows), noFlags)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.ErrorCounts[ErrorCategoryRouting])
	require.Len(t, summary.ErrorSamples[ErrorCategoryRouting], 1)
	assert.ErrorIs(t, summary.ErrorSamples[ErrorCategoryRouting][0].Err, ErrUnroutableRow)
}

func TestPostBatchFlagScanCoversAffectedEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Draft status with a date far in the past, and no teacher assigned
	row := map[string]string{
		"Session ID": "S400",
		"Title":      "Orientation",
		"Date":       "2000-01-01",
		"Status":     "Draft",
	}
	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{row}), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FlagsCreated)

	entity, err := f.entities.FindByExternalID(ctx, model.KindEvent, "S400")
	require.NoError(t, err)
	open, err := f.flagRepo.ListOpen(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	// Unchanged re-import still re-scans; the open set stays put
	second, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{row}), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FlagsCreated)
	assert.Equal(t, 0, second.FlagsResolved)
}

func TestCancelledContextAbortsBatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.importer.Run(ctx,
		source.NewMemorySource("roster.csv", []map[string]string{sessionRow}), noFlags)
	require.Error(t, err)
	assert.Equal(t, 0, summary.Created)
}

func TestDetectKindRoutesByShape(t *testing.T) {
	kind, ok := detectKind(map[string]string{"Title": "A", "Date": "2026-01-01"})
	require.True(t, ok)
	assert.Equal(t, model.KindEvent, kind)

	kind, ok = detectKind(map[string]string{"Name": "Dana", "Email": "d@example.org"})
	require.True(t, ok)
	assert.Equal(t, model.KindPerson, kind)

	// A session row naming its teacher stays a session
	kind, ok = detectKind(map[string]string{"Title": "A", "Teacher": "Dana"})
	require.True(t, ok)
	assert.Equal(t, model.KindEvent, kind)

	_, ok = detectKind(map[string]string{"foo": "bar"})
	assert.False(t, ok)
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed.UTC()
}
