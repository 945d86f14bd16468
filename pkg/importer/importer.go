// pkg/importer/importer.go

// Package importer drives an end-to-end import batch: rows flow from a
// tabular source through normalization and resolution, unmatched rows land
// in the review queue, and the flag scanner sweeps whatever the batch
// touched.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/flags"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/normalize"
	"github.com/classbridge/roster-import/pkg/resolver"
	"github.com/classbridge/roster-import/pkg/source"
	"github.com/classbridge/roster-import/pkg/store"
	"github.com/classbridge/roster-import/pkg/unmatched"
)

// Pipeline step names usable with Options.Only and Options.Skip
const (
	StepSessions = "sessions"
	StepPeople   = "people"
	StepFlags    = "flags"
)

// DefaultChunkSize bounds how many rows are processed between cancellation
// checkpoints
const DefaultChunkSize = 500

// Options tune one import run
type Options struct {
	// DryRun buffers every write in process: the summary comes out the
	// same shape as a real run with zero persistent writes
	DryRun bool
	// Only restricts the run to the named steps; empty means all
	Only []string
	// Skip excludes the named steps
	Skip []string
	// Limit stops reading after this many rows; zero means unlimited
	Limit int
	// ChunkSize overrides the cancellation-checkpoint interval
	ChunkSize int
	// FailFast aborts the batch on the first row error instead of
	// aggregating and continuing
	FailFast bool
	// Timeout bounds the whole run; zero disables it for exceptionally
	// large files
	Timeout time.Duration
	// Actor attributes the batch's mutations; defaults to the system
	// identity
	Actor model.ActorContext
}

func (o Options) actor() model.ActorContext {
	if o.Actor.UserID == "" {
		return model.SystemActor
	}
	return o.Actor
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

func (o Options) stepEnabled(step string) bool {
	for _, s := range o.Skip {
		if strings.EqualFold(s, step) {
			return false
		}
	}
	if len(o.Only) == 0 {
		return true
	}
	for _, s := range o.Only {
		if strings.EqualFold(s, step) {
			return true
		}
	}
	return false
}

// Summary is the outcome report of one batch
type Summary struct {
	BatchID uuid.UUID
	Source  string
	DryRun  bool

	RowsRead  int
	Created   int
	Updated   int
	Unchanged int
	Unmatched int
	Skipped   int
	Errored   int

	FlagsCreated  int
	FlagsResolved int

	ChunksDone    int
	AuditFailures int64
	Elapsed       time.Duration

	ErrorCounts  map[ErrorCategory]int
	ErrorSamples map[ErrorCategory][]RowError
}

// Importer wires the pipeline components over shared persistence
type Importer struct {
	entities      store.EntityStore
	auditRepo     audit.Repository
	unmatchedRepo unmatched.Repository
	flagRepo      flags.Repository
	logger        *zap.Logger
}

// New creates an importer over the given persistence backends
func New(entities store.EntityStore, auditRepo audit.Repository, unmatchedRepo unmatched.Repository, flagRepo flags.Repository, logger *zap.Logger) *Importer {
	return &Importer{
		entities:      entities,
		auditRepo:     auditRepo,
		unmatchedRepo: unmatchedRepo,
		flagRepo:      flagRepo,
		logger:        logger.Named("importer"),
	}
}

// run holds the per-batch component set. Dry runs get buffered stores so
// nothing escapes the process.
type run struct {
	entities store.EntityStore
	auditor  *audit.Logger
	resolver *resolver.Resolver
	tracker  *unmatched.Tracker
	scanner  *flags.Scanner
}

func (im *Importer) newRun(dryRun bool) *run {
	entities := im.entities
	auditRepo := im.auditRepo
	unmatchedRepo := im.unmatchedRepo
	flagRepo := im.flagRepo
	if dryRun {
		entities = store.NewOverlay(im.entities)
		auditRepo = audit.NewMemoryRepository()
		unmatchedRepo = unmatched.NewMemoryRepository()
		flagRepo = flags.NewMemoryRepository()
	}

	auditor := audit.NewLogger(auditRepo, im.logger)
	return &run{
		entities: entities,
		auditor:  auditor,
		resolver: resolver.New(entities, resolver.DefaultStrategies(entities), auditor, im.logger),
		tracker:  unmatched.NewTracker(unmatchedRepo, entities, auditor, im.logger),
		scanner:  flags.NewScanner(entities, flagRepo, auditor, im.logger),
	}
}

// Run executes one batch over the source. Row-level failures are
// aggregated into the summary and never abort the batch; the only fatal
// conditions are failure to read the source, cancellation, and the first
// row error under FailFast.
func (im *Importer) Run(ctx context.Context, src source.Source, opts Options) (*Summary, error) {
	started := time.Now()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	summary := &Summary{
		BatchID: uuid.New(),
		Source:  src.Name(),
		DryRun:  opts.DryRun,
	}
	batch := resolver.BatchContext{BatchID: summary.BatchID, Actor: opts.actor()}
	components := im.newRun(opts.DryRun)
	aggregator := newErrorAggregator(im.logger)

	im.logger.Info("Starting import batch",
		zap.String("batch_id", summary.BatchID.String()),
		zap.String("source", summary.Source),
		zap.Bool("dry_run", opts.DryRun))

	reader, err := src.Open(ctx)
	if err != nil {
		return im.finish(summary, aggregator, components, started),
			fmt.Errorf("failed to open source %s: %w", src.Name(), err)
	}
	defer reader.Close()

	affected := make(map[uuid.UUID]bool)
	chunkSize := opts.chunkSize()
	inChunk := 0

	for {
		if opts.Limit > 0 && summary.RowsRead >= opts.Limit {
			break
		}
		// Chunk boundary: the only place an in-flight batch may stop.
		// Everything processed so far stays committed; a full re-run
		// reconciles the remainder.
		if inChunk >= chunkSize {
			summary.ChunksDone++
			inChunk = 0
			if err := ctx.Err(); err != nil {
				return im.finish(summary, aggregator, components, started),
					fmt.Errorf("batch aborted at chunk boundary: %w", err)
			}
		}

		values, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return im.finish(summary, aggregator, components, started),
					fmt.Errorf("batch aborted: %w", ctx.Err())
			}
			aggregator.record(NewRowError(err, ErrorCategorySourceRead).WithSeq(summary.RowsRead + 1))
			summary.Errored++
			return im.finish(summary, aggregator, components, started),
				fmt.Errorf("failed to read source %s: %w", src.Name(), err)
		}

		summary.RowsRead++
		inChunk++
		rec := model.Record{BatchID: summary.BatchID, Seq: summary.RowsRead, Values: values}

		rowErr := im.processRow(ctx, components, rec, opts, batch, summary, affected)
		if rowErr != nil {
			summary.Errored++
			aggregator.record(NewRowError(rowErr, Categorize(rowErr)).WithSeq(rec.Seq))
			if opts.FailFast {
				return im.finish(summary, aggregator, components, started),
					fmt.Errorf("row %d failed: %w", rec.Seq, rowErr)
			}
		}
	}
	if inChunk > 0 {
		summary.ChunksDone++
	}

	if opts.stepEnabled(StepFlags) && len(affected) > 0 {
		ids := make([]uuid.UUID, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		flagSummary, err := components.scanner.Scan(ctx, ids)
		if flagSummary != nil {
			summary.FlagsCreated = flagSummary.Created
			summary.FlagsResolved = flagSummary.Resolved
		}
		if err != nil {
			return im.finish(summary, aggregator, components, started),
				fmt.Errorf("flag scan failed: %w", err)
		}
	}

	return im.finish(summary, aggregator, components, started), nil
}

// processRow routes one raw row through normalization and resolution.
// A returned error is per-row: counted, never fatal unless FailFast.
func (im *Importer) processRow(
	ctx context.Context,
	components *run,
	rec model.Record,
	opts Options,
	batch resolver.BatchContext,
	summary *Summary,
	affected map[uuid.UUID]bool,
) error {
	kind, ok := detectKind(rec.Values)
	if !ok {
		return fmt.Errorf("%w (columns: %s)", ErrUnroutableRow,
			strings.Join(columnNames(rec.Values), ", "))
	}

	var outcome resolver.Outcome
	switch kind {
	case model.KindEvent:
		if !opts.stepEnabled(StepSessions) {
			summary.Skipped++
			return nil
		}
		row, err := normalize.Session(rec)
		if err != nil {
			return err
		}
		outcome, err = components.resolver.ResolveSession(ctx, row, batch)
		if err != nil {
			return err
		}
	case model.KindPerson:
		if !opts.stepEnabled(StepPeople) {
			summary.Skipped++
			return nil
		}
		row, err := normalize.Person(rec)
		if err != nil {
			return err
		}
		outcome, err = components.resolver.ResolvePerson(ctx, row, batch)
		if err != nil {
			return err
		}
	}

	switch outcome.Kind {
	case resolver.OutcomeCreated:
		summary.Created++
		affected[outcome.Entity.ID] = true
	case resolver.OutcomeUpdated:
		summary.Updated++
		affected[outcome.Entity.ID] = true
	case resolver.OutcomeUnchanged:
		summary.Unchanged++
		affected[outcome.Entity.ID] = true
	case resolver.OutcomeUnmatched:
		summary.Unmatched++
		if _, err := components.tracker.Record(ctx, rec, outcome.UnmatchedKind, outcome.MatchKey); err != nil {
			return fmt.Errorf("failed to record unmatched row: %w", err)
		}
	}
	return nil
}

func (im *Importer) finish(summary *Summary, aggregator *errorAggregator, components *run, started time.Time) *Summary {
	_, counts, samples := aggregator.summary()
	summary.ErrorCounts = counts
	summary.ErrorSamples = samples
	summary.AuditFailures = components.auditor.Failures()
	summary.Elapsed = time.Since(started)

	im.logger.Info("Import batch finished",
		zap.String("batch_id", summary.BatchID.String()),
		zap.Int("rows", summary.RowsRead),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("errored", summary.Errored),
		zap.Duration("elapsed", summary.Elapsed))
	return summary
}

// Columns that identify a session row, canonicalized form
var sessionMarkers = []string{
	"title", "sessiontitle", "eventtitle",
	"date", "sessiondate", "eventdate", "sessionid",
}

// Columns that identify a person row, canonicalized form
var personMarkers = []string{
	"name", "fullname", "email", "emailaddress", "mail",
	"role", "personid", "volunteerid",
}

// detectKind sniffs which record shape a raw row carries. Session markers
// win over person markers so a session row naming its teacher is not
// misrouted.
func detectKind(values map[string]string) (model.EntityKind, bool) {
	keys := make(map[string]bool, len(values))
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	for header := range values {
		keys[replacer.Replace(strings.ToLower(strings.TrimSpace(header)))] = true
	}
	for _, marker := range sessionMarkers {
		if keys[marker] {
			return model.KindEvent, true
		}
	}
	for _, marker := range personMarkers {
		if keys[marker] {
			return model.KindPerson, true
		}
	}
	return "", false
}

func columnNames(values map[string]string) []string {
	out := make([]string, 0, len(values))
	for header := range values {
		out = append(out, header)
	}
	return out
}
