// pkg/model/unmatched.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// UnmatchedKind classifies which side of a row failed to resolve
type UnmatchedKind string

const (
	// UnmatchedSubject: the row's primary entity could not be matched and
	// the row lacks the fields required to justify creating one
	UnmatchedSubject UnmatchedKind = "subject_not_found"
	// UnmatchedTarget: a related entity named by the row (e.g. a teacher
	// reference on a session) could not be resolved
	UnmatchedTarget UnmatchedKind = "target_not_found"
	UnmatchedBoth   UnmatchedKind = "both_not_found"
)

// UnmatchedStatus is the review lifecycle of an unmatched record
type UnmatchedStatus string

const (
	UnmatchedPending  UnmatchedStatus = "pending"
	UnmatchedResolved UnmatchedStatus = "resolved"
	UnmatchedIgnored  UnmatchedStatus = "ignored"
)

// UnmatchedRecord archives a source row the resolver could not confidently
// link to an entity. Retained indefinitely for audit purposes; only the
// manual review workflow mutates it.
type UnmatchedRecord struct {
	ID      uuid.UUID
	BatchID uuid.UUID
	Seq     int               // original ordinal position in the source
	Payload map[string]string // raw row as read, JSON-serialized at rest

	Kind          UnmatchedKind
	MatchKeyHash  string   // dedupe key across repeated imports
	AttemptedKeys []string // human-readable keys that were tried

	Status           UnmatchedStatus
	ResolvedEntityID uuid.UUID // set when resolved by linking to an entity
	ResolvedBy       string
	ResolvedAt       *time.Time
	Notes            string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pending reports whether the record still awaits review
func (u *UnmatchedRecord) Pending() bool {
	return u.Status == UnmatchedPending
}
