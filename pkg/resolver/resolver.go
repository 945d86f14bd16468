// pkg/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/normalize"
	"github.com/classbridge/roster-import/pkg/store"
)

// OutcomeKind classifies a resolution result
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeUpdated
	// OutcomeUnchanged: the row matched but every import-owned field
	// already held the computed value, so nothing was written and no
	// audit entry exists. Re-importing the same file yields only these.
	OutcomeUnchanged
	OutcomeUnmatched
)

// String returns a short name for summaries and logs
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUnmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of resolving one normalized row
type Outcome struct {
	Kind          OutcomeKind
	Entity        *model.Entity
	ChangedFields []string

	// Set when Kind is OutcomeUnmatched
	UnmatchedKind model.UnmatchedKind
	MatchKey      model.MatchKey
}

// BatchContext carries batch identity and actor attribution through a
// resolution. Passed explicitly; there is no ambient request state.
type BatchContext struct {
	BatchID uuid.UUID
	Actor   model.ActorContext
}

// Resolver finds or creates the target entity for normalized rows using
// the ordered matching hierarchy
type Resolver struct {
	entities   store.EntityStore
	strategies []MatchStrategy
	auditor    *audit.Logger
	logger     *zap.Logger
}

// New creates a resolver over a store and an explicit strategy list
func New(entities store.EntityStore, strategies []MatchStrategy, auditor *audit.Logger, logger *zap.Logger) *Resolver {
	return &Resolver{
		entities:   entities,
		strategies: strategies,
		auditor:    auditor,
		logger:     logger,
	}
}

// maxSaveRetries bounds optimistic-concurrency retries on one entity
const maxSaveRetries = 3

// ResolveSession resolves a normalized session row against the event graph
func (r *Resolver) ResolveSession(ctx context.Context, row model.SessionRow, batch BatchContext) (Outcome, error) {
	key := model.MatchKey{Kind: model.KindEvent, ExternalID: row.ExternalID}
	if row.Title != nil && row.Date != nil {
		key.Composite = model.EventCompositeKey(*row.Title, *row.Date)
	}

	// Resolve the related teacher reference first; its failure decides
	// the unmatched classification before any session mutation happens
	var teacher *model.Entity
	teacherMissing := false
	if row.TeacherRef != nil {
		found, err := r.lookupPerson(ctx, *row.TeacherRef)
		if err != nil {
			return Outcome{}, err
		}
		if found == nil {
			teacherMissing = true
		}
		teacher = found
	}

	entity, tier, err := r.match(ctx, key)
	if err != nil {
		return Outcome{}, err
	}

	if entity == nil {
		creatable := row.Title != nil && *row.Title != "" && row.Date != nil
		switch {
		case teacherMissing && !creatable:
			return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedBoth, MatchKey: key}, nil
		case teacherMissing:
			// Never fabricate the missing person, and never create the
			// session on top of a dangling reference
			return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedTarget, MatchKey: key}, nil
		case !creatable:
			return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedSubject, MatchKey: key}, nil
		}
		return r.createSession(ctx, row, teacher, batch)
	}

	if teacherMissing {
		return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedTarget, MatchKey: key}, nil
	}

	changes := sessionChanges(entity, row, teacher)
	if tier == "composite_key" && key.HasExternalID() && entity.ExternalID == "" {
		// Backfill the identifier so future imports match at tier 1
		changes = append(changes, fieldChange{
			field:    model.FieldExternalID,
			action:   model.ActionBackfillID,
			oldValue: "",
			newValue: key.ExternalID,
			apply:    func(e *model.Entity) { e.ExternalID = key.ExternalID },
		})
	}

	return r.applyChanges(ctx, entity, changes, batch)
}

// ResolvePerson resolves a normalized teacher/volunteer row
func (r *Resolver) ResolvePerson(ctx context.Context, row model.PersonRow, batch BatchContext) (Outcome, error) {
	key := model.MatchKey{Kind: model.KindPerson, ExternalID: row.ExternalID}
	if row.Email != nil {
		key.Composite = model.PersonCompositeKey(*row.Email)
	}

	entity, tier, err := r.match(ctx, key)
	if err != nil {
		return Outcome{}, err
	}

	if entity == nil {
		if row.Name == nil || *row.Name == "" || row.Role == "" {
			return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedSubject, MatchKey: key}, nil
		}
		// A row with no identifier and no email can never match on a later
		// import; creating it would mint a duplicate on every re-run. It
		// goes to review instead.
		if !key.HasExternalID() && !key.HasComposite() {
			return Outcome{Kind: OutcomeUnmatched, UnmatchedKind: model.UnmatchedSubject, MatchKey: key}, nil
		}
		return r.createPerson(ctx, row, batch)
	}

	changes := personChanges(entity, row)
	if tier == "composite_key" && key.HasExternalID() && entity.ExternalID == "" {
		changes = append(changes, fieldChange{
			field:    model.FieldExternalID,
			action:   model.ActionBackfillID,
			oldValue: "",
			newValue: key.ExternalID,
			apply:    func(e *model.Entity) { e.ExternalID = key.ExternalID },
		})
	}

	return r.applyChanges(ctx, entity, changes, batch)
}

// ApplyManualEdit sets a field by direct human action. The field becomes
// manually owned: imports will never overwrite it again.
func (r *Resolver) ApplyManualEdit(ctx context.Context, entityID uuid.UUID, field, value string, actor model.ActorContext) (*model.Entity, error) {
	for attempt := 0; ; attempt++ {
		entity, err := r.entities.Get(ctx, entityID)
		if err != nil {
			return nil, err
		}

		oldValue, err := setField(entity, field, value)
		if err != nil {
			return nil, err
		}
		entity.MarkManual(field)

		err = r.entities.Save(ctx, entity)
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxSaveRetries {
			continue
		}
		if err != nil {
			return nil, err
		}

		r.auditor.FieldChange(ctx, entity, field, oldValue, value, actor, model.SourceManual)
		return entity, nil
	}
}

// match walks the strategy list in order; first success wins
func (r *Resolver) match(ctx context.Context, key model.MatchKey) (*model.Entity, string, error) {
	for _, strategy := range r.strategies {
		entity, err := strategy.AttemptMatch(ctx, key)
		if err != nil {
			return nil, "", err
		}
		if entity != nil {
			r.logger.Debug("Matched entity",
				zap.String("strategy", strategy.Name()),
				zap.String("entityID", entity.ID.String()),
				zap.String("kind", string(key.Kind)))
			return entity, strategy.Name(), nil
		}
	}
	return nil, "", nil
}

// lookupPerson resolves an in-row person reference. Email is tried first;
// a name-only reference matches only when exactly one person carries that
// normalized name. Ambiguity means no match — the row goes to review
// rather than being linked to a guess.
func (r *Resolver) lookupPerson(ctx context.Context, ref model.PersonRef) (*model.Entity, error) {
	if ref.Email != "" {
		entity, err := r.entities.FindByCompositeKey(ctx, model.KindPerson, model.PersonCompositeKey(ref.Email))
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if ref.Name == "" {
		return nil, nil
	}

	wanted := normalize.PersonName(ref.Name)
	if wanted == "" {
		return nil, nil
	}

	people, err := r.entities.List(ctx, model.KindPerson)
	if err != nil {
		return nil, err
	}

	var found *model.Entity
	for _, person := range people {
		if normalize.PersonName(person.Name) != wanted {
			continue
		}
		if found != nil {
			return nil, nil // ambiguous
		}
		found = person
	}
	return found, nil
}

func (r *Resolver) createSession(ctx context.Context, row model.SessionRow, teacher *model.Entity, batch BatchContext) (Outcome, error) {
	entity := model.NewEntity(model.KindEvent)
	entity.ExternalID = row.ExternalID
	entity.Title = *row.Title
	entity.Date = *row.Date
	if row.Status != nil {
		entity.Status = *row.Status
	}
	if row.Notes != nil {
		entity.Notes = *row.Notes
	}
	if teacher != nil {
		entity.TeacherID = teacher.ID
	}
	return r.create(ctx, entity, batch)
}

func (r *Resolver) createPerson(ctx context.Context, row model.PersonRow, batch BatchContext) (Outcome, error) {
	entity := model.NewEntity(model.KindPerson)
	entity.ExternalID = row.ExternalID
	entity.Name = *row.Name
	entity.Role = row.Role
	if row.Email != nil {
		entity.Email = *row.Email
	}
	if row.Notes != nil {
		entity.Notes = *row.Notes
	}
	return r.create(ctx, entity, batch)
}

func (r *Resolver) create(ctx context.Context, entity *model.Entity, batch BatchContext) (Outcome, error) {
	entity.ImportSource = "import"
	entity.SourceBatchID = batch.BatchID

	if err := r.entities.Save(ctx, entity); err != nil {
		return Outcome{}, fmt.Errorf("failed to create entity: %w", err)
	}

	r.auditor.Record(ctx, audit.Entry{
		EntityID:   entity.ID,
		EntityKind: entity.Kind,
		Action:     model.ActionCreate,
		Actor:      batch.Actor,
		Source:     model.SourceImport,
		Notes:      "batch " + batch.BatchID.String(),
	})

	return Outcome{Kind: OutcomeCreated, Entity: entity}, nil
}

// applyChanges writes the import-owned field updates that survived the
// ownership partition. No changes means no save and no audit entries,
// which is what makes re-imports idempotent.
func (r *Resolver) applyChanges(ctx context.Context, entity *model.Entity, changes []fieldChange, batch BatchContext) (Outcome, error) {
	if len(changes) == 0 {
		return Outcome{Kind: OutcomeUnchanged, Entity: entity}, nil
	}

	for attempt := 0; ; attempt++ {
		// Re-filter on every attempt: a concurrent writer may have taken
		// manual ownership of a field between read and save
		eligible := make([]fieldChange, 0, len(changes))
		for _, change := range changes {
			if entity.IsManual(change.field) {
				continue
			}
			eligible = append(eligible, change)
		}
		if len(eligible) == 0 {
			return Outcome{Kind: OutcomeUnchanged, Entity: entity}, nil
		}
		changes = eligible

		for _, change := range changes {
			change.apply(entity)
		}

		err := r.entities.Save(ctx, entity)
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxSaveRetries {
			fresh, getErr := r.entities.Get(ctx, entity.ID)
			if getErr != nil {
				return Outcome{}, getErr
			}
			entity = fresh
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to update entity: %w", err)
		}
		break
	}

	changed := make([]string, 0, len(changes))
	for _, change := range changes {
		changed = append(changed, change.field)
		action := change.action
		if action == "" {
			action = model.ActionUpdate
		}
		r.auditor.Record(ctx, audit.Entry{
			EntityID:   entity.ID,
			EntityKind: entity.Kind,
			Action:     action,
			Field:      change.field,
			OldValue:   change.oldValue,
			NewValue:   change.newValue,
			Actor:      batch.Actor,
			Source:     model.SourceImport,
		})
	}

	return Outcome{Kind: OutcomeUpdated, Entity: entity, ChangedFields: changed}, nil
}

// fieldChange is one pending import-owned field update
type fieldChange struct {
	field    string
	action   string // defaults to update
	oldValue string
	newValue string
	apply    func(*model.Entity)
}

// sessionChanges computes the field deltas an import may apply to a
// matched event. Manually-owned fields are skipped outright; identical
// values produce no change. Absent columns (nil pointers) carry no update;
// present-but-empty values clear the field.
func sessionChanges(entity *model.Entity, row model.SessionRow, teacher *model.Entity) []fieldChange {
	var changes []fieldChange

	appendChange := func(field, oldValue, newValue string, apply func(*model.Entity)) {
		if entity.IsManual(field) || oldValue == newValue {
			return
		}
		changes = append(changes, fieldChange{field: field, oldValue: oldValue, newValue: newValue, apply: apply})
	}

	if row.Title != nil {
		title := *row.Title
		appendChange(model.FieldTitle, entity.Title, title,
			func(e *model.Entity) { e.Title = title })
	}
	if row.Date != nil {
		date := *row.Date
		appendChange(model.FieldDate, model.AuditValue(entity.Date), model.AuditValue(date),
			func(e *model.Entity) { e.Date = date })
	}
	if row.Status != nil {
		status := *row.Status
		appendChange(model.FieldStatus, entity.Status.String(), status.String(),
			func(e *model.Entity) { e.Status = status })
	}
	if row.Notes != nil {
		notes := *row.Notes
		appendChange(model.FieldNotes, entity.Notes, notes,
			func(e *model.Entity) { e.Notes = notes })
	}
	if teacher != nil {
		teacherID := teacher.ID
		appendChange(model.FieldTeacher, model.AuditValue(entity.TeacherID), model.AuditValue(teacherID),
			func(e *model.Entity) { e.TeacherID = teacherID })
	}

	return changes
}

// personChanges computes field deltas for a matched person
func personChanges(entity *model.Entity, row model.PersonRow) []fieldChange {
	var changes []fieldChange

	appendChange := func(field, oldValue, newValue string, apply func(*model.Entity)) {
		if entity.IsManual(field) || oldValue == newValue {
			return
		}
		changes = append(changes, fieldChange{field: field, oldValue: oldValue, newValue: newValue, apply: apply})
	}

	if row.Name != nil {
		name := *row.Name
		appendChange(model.FieldName, entity.Name, name,
			func(e *model.Entity) { e.Name = name })
	}
	if row.Email != nil {
		email := *row.Email
		appendChange(model.FieldEmail, entity.Email, email,
			func(e *model.Entity) { e.Email = email })
	}
	if row.Role != "" {
		role := row.Role
		appendChange(model.FieldRole, string(entity.Role), string(role),
			func(e *model.Entity) { e.Role = role })
	}
	if row.Notes != nil {
		notes := *row.Notes
		appendChange(model.FieldNotes, entity.Notes, notes,
			func(e *model.Entity) { e.Notes = notes })
	}

	return changes
}

// setField assigns a named field on an entity, returning the old value in
// audit form
func setField(entity *model.Entity, field, value string) (string, error) {
	switch field {
	case model.FieldTitle:
		old := entity.Title
		entity.Title = value
		return old, nil
	case model.FieldName:
		old := entity.Name
		entity.Name = value
		return old, nil
	case model.FieldEmail:
		old := entity.Email
		entity.Email = value
		return old, nil
	case model.FieldNotes:
		old := entity.Notes
		entity.Notes = value
		return old, nil
	case model.FieldStatus:
		old := entity.Status.String()
		entity.Status = normalize.MapStatus(value)
		return old, nil
	case model.FieldDate:
		old := model.AuditValue(entity.Date)
		parsed, err := normalize.ParseDate(value)
		if err != nil {
			return "", err
		}
		entity.Date = parsed
		return old, nil
	default:
		return "", fmt.Errorf("field %q cannot be edited", field)
	}
}
