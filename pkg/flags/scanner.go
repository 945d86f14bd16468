// pkg/flags/scanner.go
package flags

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/store"
)

// ErrNotFound is returned when no flag matches a lookup
var ErrNotFound = errors.New("flags: flag not found")

// Repository is the persistence boundary for flags
type Repository interface {
	Insert(ctx context.Context, flag *model.Flag) error
	Update(ctx context.Context, flag *model.Flag) error
	FindOpen(ctx context.Context, entityID uuid.UUID, flagType model.FlagType) (*model.Flag, error)
	ListOpen(ctx context.Context, entityID uuid.UUID) ([]*model.Flag, error)
}

// Summary reports what one scan changed
type Summary struct {
	Scanned  int
	Created  int
	Resolved int
}

// Scanner evaluates business-rule predicates over entities, opening and
// auto-clearing flags so the open set always mirrors current entity state.
// It runs after an import batch (scoped to the affected entities) or as an
// explicit full sweep, never on individual saves.
type Scanner struct {
	entities   store.EntityStore
	repo       Repository
	auditor    *audit.Logger
	logger     *zap.Logger
	predicates []Predicate
	now        func() time.Time
}

// NewScanner creates a scanner with the default predicate set
func NewScanner(entities store.EntityStore, repo Repository, auditor *audit.Logger, logger *zap.Logger) *Scanner {
	return &Scanner{
		entities:   entities,
		repo:       repo,
		auditor:    auditor,
		logger:     logger,
		predicates: DefaultPredicates(),
		now:        time.Now,
	}
}

// WithPredicates overrides the rule set and returns the scanner
func (s *Scanner) WithPredicates(predicates []Predicate) *Scanner {
	s.predicates = predicates
	return s
}

// WithClock overrides the time source and returns the scanner
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan evaluates every predicate against the given entities. Creation is
// idempotent: an entity already carrying an open flag of a type gains no
// second one. When a predicate no longer holds, the matching open flag is
// auto-resolved.
func (s *Scanner) Scan(ctx context.Context, ids []uuid.UUID) (*Summary, error) {
	summary := &Summary{}
	now := s.now().UTC()

	for _, id := range ids {
		entity, err := s.entities.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("failed to load entity %s: %w", id, err)
		}
		summary.Scanned++

		for _, predicate := range s.predicates {
			holds := predicate.Holds(entity, now)
			open, err := s.repo.FindOpen(ctx, entity.ID, predicate.Type)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return summary, fmt.Errorf("failed to check open flag: %w", err)
			}

			switch {
			case holds && open == nil:
				if err := s.open(ctx, entity, predicate.Type, now); err != nil {
					return summary, err
				}
				summary.Created++
			case !holds && open != nil:
				if err := s.clear(ctx, entity, open, now); err != nil {
					return summary, err
				}
				summary.Resolved++
			}
		}
	}

	s.logger.Info("Flag scan complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("created", summary.Created),
		zap.Int("resolved", summary.Resolved))
	return summary, nil
}

// Sweep runs the scan over every entity in the store
func (s *Scanner) Sweep(ctx context.Context) (*Summary, error) {
	ids := make([]uuid.UUID, 0)
	for _, kind := range []model.EntityKind{model.KindEvent, model.KindPerson} {
		entities, err := s.entities.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
		}
		for _, entity := range entities {
			ids = append(ids, entity.ID)
		}
	}
	return s.Scan(ctx, ids)
}

// OnCorrectiveAction resolves the matching open flag when the underlying
// condition was fixed elsewhere in the system, stamping the actor who
// performed the fix. A no-op when no such flag is open.
func (s *Scanner) OnCorrectiveAction(ctx context.Context, entityID uuid.UUID, flagType model.FlagType, actor model.ActorContext) error {
	open, err := s.repo.FindOpen(ctx, entityID, flagType)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check open flag: %w", err)
	}

	now := s.now().UTC()
	open.Resolve(actor.UserID, "corrective action", now)
	if err := s.repo.Update(ctx, open); err != nil {
		return fmt.Errorf("failed to resolve flag: %w", err)
	}

	source := model.SourceManual
	if actor.UserID == model.SystemActor.UserID {
		source = model.SourceSystem
	}
	s.auditor.Record(ctx, audit.Entry{
		EntityID: entityID,
		Action:   model.ActionFlagResolve,
		Field:    string(flagType),
		Actor:    actor,
		Source:   source,
		Notes:    "corrective action",
	})
	return nil
}

func (s *Scanner) open(ctx context.Context, entity *model.Entity, flagType model.FlagType, now time.Time) error {
	flag := &model.Flag{
		ID:        uuid.New(),
		EntityID:  entity.ID,
		Type:      flagType,
		CreatedBy: model.SystemActor.UserID,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, flag); err != nil {
		return fmt.Errorf("failed to create flag: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Action:     model.ActionFlagCreate,
		Field:      string(flagType),
		Actor:      model.SystemActor,
		Source:     model.SourceSystem,
	})
	s.logger.Debug("Opened flag",
		zap.String("entity_id", entity.ID.String()),
		zap.String("type", string(flagType)))
	return nil
}

func (s *Scanner) clear(ctx context.Context, entity *model.Entity, flag *model.Flag, now time.Time) error {
	flag.Resolve(model.SystemActor.UserID, "condition no longer holds", now)
	if err := s.repo.Update(ctx, flag); err != nil {
		return fmt.Errorf("failed to auto-resolve flag: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Action:     model.ActionFlagResolve,
		Field:      string(flag.Type),
		Actor:      model.SystemActor,
		Source:     model.SourceSystem,
		Notes:      "condition no longer holds",
	})
	return nil
}
