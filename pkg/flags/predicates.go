// pkg/flags/predicates.go
package flags

import (
	"time"

	"github.com/google/uuid"

	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/normalize"
)

// Predicate is one business rule the scanner evaluates. Holds reports
// whether the entity currently deserves an open flag of this type.
type Predicate struct {
	Type  model.FlagType
	Holds func(entity *model.Entity, now time.Time) bool
}

// DefaultPredicates returns the rule set in evaluation order
func DefaultPredicates() []Predicate {
	return []Predicate{
		{
			Type: model.FlagDraftPastDate,
			Holds: func(e *model.Entity, now time.Time) bool {
				if e.Kind != model.KindEvent {
					return false
				}
				return e.Status.Code == model.StatusDraft &&
					!e.Date.IsZero() &&
					e.Date.Before(now.UTC().Truncate(24*time.Hour))
			},
		},
		{
			Type: model.FlagMissingTeacher,
			Holds: func(e *model.Entity, _ time.Time) bool {
				if e.Kind != model.KindEvent {
					return false
				}
				// Cancelled sessions are not expected to be staffed
				return e.TeacherID == uuid.Nil &&
					e.Status.Code != model.StatusCancelled
			},
		},
		{
			Type: model.FlagCancelledNoReason,
			Holds: func(e *model.Entity, _ time.Time) bool {
				if e.Kind != model.KindEvent {
					return false
				}
				return e.Status.Code == model.StatusCancelled && e.Notes == ""
			},
		},
		{
			Type: model.FlagUnparseableContact,
			Holds: func(e *model.Entity, _ time.Time) bool {
				if e.Kind != model.KindPerson || e.Email == "" {
					return false
				}
				_, valid := normalize.NormalizeEmail(e.Email)
				return !valid
			},
		},
	}
}
