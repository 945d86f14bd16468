// pkg/model/flag.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// FlagType enumerates the business-rule predicates that can mark an entity
// as needing attention
type FlagType string

const (
	FlagDraftPastDate      FlagType = "draft_past_date"
	FlagMissingTeacher     FlagType = "missing_teacher"
	FlagCancelledNoReason  FlagType = "cancelled_no_reason"
	FlagUnparseableContact FlagType = "unparseable_contact"
)

// Flag marks an entity for operator attention. At most one unresolved flag
// of a given type may exist per entity at any time.
type Flag struct {
	ID       uuid.UUID
	EntityID uuid.UUID
	Type     FlagType

	CreatedBy string // "system" or a user identity
	CreatedAt time.Time

	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string
}

// Resolved reports whether the flag lifecycle has closed
func (f *Flag) Resolved() bool {
	return f.ResolvedAt != nil
}

// Resolve closes the flag, stamping resolution metadata
func (f *Flag) Resolve(by, notes string, at time.Time) {
	f.ResolvedAt = &at
	f.ResolvedBy = by
	f.ResolutionNotes = notes
}
