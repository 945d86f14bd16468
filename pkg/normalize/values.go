// pkg/normalize/values.go
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/classbridge/roster-import/pkg/model"
)

var internalWhitespaceRe = regexp.MustCompile(`\s+`)

// CollapseIdentifier trims an identifier-like field and collapses internal
// whitespace runs to a single space. Free-text fields never go through
// this; titles and notes keep their internal spacing.
func CollapseIdentifier(s string) string {
	return internalWhitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Loose shape check only. Deliverability is not this layer's problem;
// values that fail are retained and flagged downstream, not rejected.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lowercases and trims an email. The second return reports
// whether the result looks like a well-formed address.
func NormalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", true
	}
	return email, emailRe.MatchString(email)
}

// dateLayouts is the small fixed set of source formats the exports are
// known to use. Anything else is a NormalizationError, not a guess.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
}

// ParseDate parses a date using the known source layouts. The calendar day
// is taken in the value's own offset before anchoring to UTC midnight, so
// a timestamped export never shifts onto a neighboring day.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			year, month, day := t.Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", raw)
}

// statusLiterals maps the open-world status vocabulary of the source
// systems onto the closed internal enumeration. Unknown literals map to
// StatusOther with the raw text preserved.
var statusLiterals = map[string]model.StatusCode{
	"draft":       model.StatusDraft,
	"planned":     model.StatusDraft,
	"pending":     model.StatusDraft,
	"published":   model.StatusPublished,
	"active":      model.StatusPublished,
	"confirmed":   model.StatusPublished,
	"scheduled":   model.StatusPublished,
	"completed":   model.StatusCompleted,
	"done":        model.StatusCompleted,
	"finished":    model.StatusCompleted,
	"cancelled":   model.StatusCancelled,
	"canceled":    model.StatusCancelled,
	"called off":  model.StatusCancelled,
	"cancelation": model.StatusCancelled,
}

// MapStatus maps a free-text status literal through the lookup table
func MapStatus(raw string) model.Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	if code, ok := statusLiterals[key]; ok {
		return model.Status{Code: code}
	}
	return model.Status{Code: model.StatusOther, Raw: strings.TrimSpace(raw)}
}

// MapRole maps a person-role literal. Roles are a closed set with no
// passthrough arm: a row with an unknown role cannot be routed to either
// population, so it fails normalization.
func MapRole(raw string) (model.PersonRole, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "teacher", "instructor", "educator":
		return model.RoleTeacher, nil
	case "volunteer", "helper", "mentor":
		return model.RoleVolunteer, nil
	case "":
		return "", errors.New("role is required")
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}
