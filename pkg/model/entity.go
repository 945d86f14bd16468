// pkg/model/entity.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies the type of record an imported row targets
type EntityKind string

const (
	KindEvent  EntityKind = "event"
	KindPerson EntityKind = "person"
)

// PersonRole distinguishes the two people populations in the entity graph
type PersonRole string

const (
	RoleTeacher   PersonRole = "teacher"
	RoleVolunteer PersonRole = "volunteer"
)

// Field names used for ownership tracking and audit entries.
// Audit rows and the manual-ownership set refer to fields by these names,
// so they must stay stable across releases.
const (
	FieldExternalID = "external_id"
	FieldTitle      = "title"
	FieldDate       = "date"
	FieldStatus     = "status"
	FieldName       = "name"
	FieldEmail      = "email"
	FieldRole       = "role"
	FieldTeacher    = "teacher_id"
	FieldNotes      = "notes"
)

// Entity is a record in the internal store addressable by a stable
// identifier. Events and people share one shape; kind-specific fields are
// zero-valued for the other kind.
type Entity struct {
	ID         uuid.UUID
	Kind       EntityKind
	ExternalID string // stable identifier from the source system, may be empty

	// Event fields
	Title     string
	Date      time.Time // significant to the day only
	TeacherID uuid.UUID

	// Person fields
	Name  string
	Email string
	Role  PersonRole

	Status Status
	Notes  string

	// ManualFields holds the names of fields whose authoritative value
	// came from a direct human edit. The import never overwrites them.
	ManualFields map[string]bool

	// Provenance stamps set when the entity is first created by an import
	ImportSource  string
	SourceBatchID uuid.UUID

	// Version guards concurrent read-modify-write cycles on one entity
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntity constructs an entity of the given kind with a fresh identity
func NewEntity(kind EntityKind) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:           uuid.New(),
		Kind:         kind,
		ManualFields: make(map[string]bool),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsManual reports whether a field is owned by manual edits
func (e *Entity) IsManual(field string) bool {
	return e.ManualFields[field]
}

// MarkManual transfers ownership of a field to manual edits
func (e *Entity) MarkManual(field string) {
	if e.ManualFields == nil {
		e.ManualFields = make(map[string]bool)
	}
	e.ManualFields[field] = true
}

// CompositeKey returns the fallback match key for this entity: normalized
// title plus date truncated to the day for events, normalized email for
// people. Empty when the entity lacks the fields the key is built from.
func (e *Entity) CompositeKey() string {
	switch e.Kind {
	case KindEvent:
		return EventCompositeKey(e.Title, e.Date)
	case KindPerson:
		return PersonCompositeKey(e.Email)
	default:
		return ""
	}
}

// Clone returns a deep copy of the entity
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	clone.ManualFields = make(map[string]bool, len(e.ManualFields))
	for k, v := range e.ManualFields {
		clone.ManualFields[k] = v
	}
	return &clone
}

// ManualFieldNames returns the manual ownership set as a sorted-stable slice
// for persistence in a text[] column
func (e *Entity) ManualFieldNames() []string {
	names := make([]string, 0, len(e.ManualFields))
	for name, owned := range e.ManualFields {
		if owned {
			names = append(names, name)
		}
	}
	return names
}

// SetManualFieldNames rebuilds the ownership set from a persisted slice
func (e *Entity) SetManualFieldNames(names []string) {
	e.ManualFields = make(map[string]bool, len(names))
	for _, name := range names {
		e.ManualFields[name] = true
	}
}
