// pkg/model/record.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Record is one raw source row: the key-value payload exactly as read,
// plus batch linkage. Records are transient; they are discarded once the
// resolver produces an outcome, unless the row ends up unmatched.
type Record struct {
	BatchID uuid.UUID
	Seq     int // ordinal position within the source, starting at 1
	Values  map[string]string
}

// Get returns a column value and whether the column was present
func (r Record) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// SessionRow is a session/event row after normalization. Pointer fields
// distinguish an absent column (nil, meaning no update) from an explicit
// empty value (pointer to "", meaning clear).
type SessionRow struct {
	Seq        int
	ExternalID string
	Title      *string
	Date       *time.Time
	Status     *Status
	TeacherRef *PersonRef // related teacher named by the row, if any
	Notes      *string

	// Warnings carries non-fatal observations from normalization, such
	// as a malformed email kept as-is for downstream review
	Warnings []string
}

// PersonRow is a teacher or volunteer row after normalization
type PersonRow struct {
	Seq        int
	ExternalID string
	Name       *string
	Email      *string
	Role       PersonRole
	Notes      *string

	Warnings []string
}

// PersonRef is an in-row reference to a person that must resolve against
// the entity store. The resolver never fabricates a person from a ref.
type PersonRef struct {
	Name  string
	Email string
}

// IsZero reports whether the reference carries no identifying information
func (p PersonRef) IsZero() bool {
	return p.Name == "" && p.Email == ""
}
