// pkg/unmatched/tracker.go
package unmatched

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/normalize"
	"github.com/classbridge/roster-import/pkg/store"
)

// ErrNotFound is returned when no unmatched record matches a lookup
var ErrNotFound = errors.New("unmatched: record not found")

// ErrNotPending is returned when a review action targets a record that is
// already resolved or ignored
var ErrNotPending = errors.New("unmatched: record is not pending")

// Repository is the persistence boundary for unmatched records
type Repository interface {
	Insert(ctx context.Context, rec *model.UnmatchedRecord) error
	Update(ctx context.Context, rec *model.UnmatchedRecord) error
	Get(ctx context.Context, id uuid.UUID) (*model.UnmatchedRecord, error)
	FindPendingByKeyHash(ctx context.Context, hash string) (*model.UnmatchedRecord, error)
	List(ctx context.Context, status model.UnmatchedStatus, limit int) ([]*model.UnmatchedRecord, error)
}

// DefaultBulkIgnoreCap bounds a single bulk-ignore invocation. The cap
// limits the blast radius of an operator mistake and keeps latency
// predictable.
const DefaultBulkIgnoreCap = 100

// Tracker captures rows the resolver could not place and runs the manual
// review workflow over them
type Tracker struct {
	repo          Repository
	entities      store.EntityStore
	auditor       *audit.Logger
	logger        *zap.Logger
	bulkIgnoreCap int
}

// NewTracker creates a tracker with the default bulk-ignore cap
func NewTracker(repo Repository, entities store.EntityStore, auditor *audit.Logger, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:          repo,
		entities:      entities,
		auditor:       auditor,
		logger:        logger,
		bulkIgnoreCap: DefaultBulkIgnoreCap,
	}
}

// WithBulkIgnoreCap overrides the bulk-ignore cap and returns the tracker
func (t *Tracker) WithBulkIgnoreCap(n int) *Tracker {
	if n > 0 {
		t.bulkIgnoreCap = n
	}
	return t
}

// Record captures one unmatched row. Repeated imports of the same stale
// row do not grow the review queue: a pending record with the same match
// key is refreshed in place rather than duplicated.
func (t *Tracker) Record(ctx context.Context, rec model.Record, kind model.UnmatchedKind, key model.MatchKey) (*model.UnmatchedRecord, error) {
	hash := dedupeHash(rec, key)

	existing, err := t.repo.FindPendingByKeyHash(ctx, hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check for pending duplicate: %w", err)
	}
	if existing != nil {
		existing.BatchID = rec.BatchID
		existing.Seq = rec.Seq
		existing.Payload = clonePayload(rec.Values)
		existing.Kind = kind
		existing.UpdatedAt = time.Now().UTC()
		if err := t.repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to refresh pending record: %w", err)
		}
		t.logger.Debug("Refreshed pending unmatched record",
			zap.String("id", existing.ID.String()),
			zap.String("kind", string(kind)))
		return existing, nil
	}

	now := time.Now().UTC()
	record := &model.UnmatchedRecord{
		ID:            uuid.New(),
		BatchID:       rec.BatchID,
		Seq:           rec.Seq,
		Payload:       clonePayload(rec.Values),
		Kind:          kind,
		MatchKeyHash:  hash,
		AttemptedKeys: key.AttemptedKeys(),
		Status:        model.UnmatchedPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.repo.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to insert unmatched record: %w", err)
	}

	t.logger.Info("Recorded unmatched row",
		zap.String("id", record.ID.String()),
		zap.String("kind", string(kind)),
		zap.Int("seq", rec.Seq))
	return record, nil
}

// dedupeHash derives the pending-dedupe digest for a row. A row that
// carried no match key at all falls back to hashing its payload: two
// distinct unplaceable rows must each keep their own pending record, while
// a re-sent identical row still refreshes in place.
func dedupeHash(rec model.Record, key model.MatchKey) string {
	if key.HasExternalID() || key.HasComposite() {
		return key.Hash()
	}

	headers := make([]string, 0, len(rec.Values))
	for header := range rec.Values {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	d := sha256.New()
	d.Write([]byte(string(key.Kind)))
	for _, header := range headers {
		d.Write([]byte{0})
		d.Write([]byte(header))
		d.Write([]byte{1})
		d.Write([]byte(rec.Values[header]))
	}
	return hex.EncodeToString(d.Sum(nil))
}

// Resolve links a pending record to an entity chosen by a reviewer. The
// decision is always an explicit actor action; suggestions are never
// auto-applied.
func (t *Tracker) Resolve(ctx context.Context, id, entityID uuid.UUID, actor model.ActorContext, notes string) error {
	record, err := t.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.Pending() {
		return ErrNotPending
	}

	entity, err := t.entities.Get(ctx, entityID)
	if err != nil {
		return fmt.Errorf("resolution target: %w", err)
	}

	now := time.Now().UTC()
	record.Status = model.UnmatchedResolved
	record.ResolvedEntityID = entity.ID
	record.ResolvedBy = actor.UserID
	record.ResolvedAt = &now
	record.Notes = notes
	record.UpdatedAt = now

	if err := t.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to resolve unmatched record: %w", err)
	}

	t.auditor.Record(ctx, audit.Entry{
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Action:     model.ActionResolveUnmatched,
		Actor:      actor,
		Source:     model.SourceManual,
		Notes:      fmt.Sprintf("unmatched record %s: %s", record.ID, notes),
	})
	return nil
}

// Ignore marks a pending record as reviewed-and-dismissed
func (t *Tracker) Ignore(ctx context.Context, id uuid.UUID, actor model.ActorContext, notes string) error {
	record, err := t.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.Pending() {
		return ErrNotPending
	}

	now := time.Now().UTC()
	record.Status = model.UnmatchedIgnored
	record.ResolvedBy = actor.UserID
	record.ResolvedAt = &now
	record.Notes = notes
	record.UpdatedAt = now

	if err := t.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to ignore unmatched record: %w", err)
	}

	t.auditor.Record(ctx, audit.Entry{
		EntityID: record.ID,
		Action:   model.ActionIgnoreUnmatched,
		Actor:    actor,
		Source:   model.SourceManual,
		Notes:    notes,
	})
	return nil
}

// BulkIgnore ignores up to the configured cap of the given ids, in order,
// and returns how many were processed. Ids past the cap are untouched and
// reported back to the caller through the count.
func (t *Tracker) BulkIgnore(ctx context.Context, ids []uuid.UUID, actor model.ActorContext) (int, error) {
	limit := len(ids)
	if limit > t.bulkIgnoreCap {
		t.logger.Warn("Bulk ignore request exceeds cap",
			zap.Int("requested", len(ids)),
			zap.Int("cap", t.bulkIgnoreCap))
		limit = t.bulkIgnoreCap
	}

	processed := 0
	for _, id := range ids[:limit] {
		err := t.Ignore(ctx, id, actor, "bulk ignore")
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotPending) {
			continue
		}
		if err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// Suggest proposes candidate entities for a pending record using secondary
// identifying information from the raw payload (any email-shaped value).
// Proposals only; resolution stays an explicit reviewer decision.
func (t *Tracker) Suggest(ctx context.Context, id uuid.UUID) ([]*model.Entity, error) {
	record, err := t.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidates := make([]*model.Entity, 0)
	seen := make(map[uuid.UUID]bool)
	for _, value := range record.Payload {
		email, valid := normalize.NormalizeEmail(value)
		if email == "" || !valid || !strings.Contains(email, "@") {
			continue
		}
		entity, err := t.entities.FindByCompositeKey(ctx, model.KindPerson, model.PersonCompositeKey(email))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !seen[entity.ID] {
			seen[entity.ID] = true
			candidates = append(candidates, entity)
		}
	}
	return candidates, nil
}

// List exposes the review queue
func (t *Tracker) List(ctx context.Context, status model.UnmatchedStatus, limit int) ([]*model.UnmatchedRecord, error) {
	return t.repo.List(ctx, status, limit)
}

func clonePayload(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
