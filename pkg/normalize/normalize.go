// pkg/normalize/normalize.go
package normalize

import (
	"fmt"
	"strings"

	"github.com/classbridge/roster-import/pkg/model"
)

// Error is a per-row, recoverable normalization failure. It names the
// offending field and the raw value so the summary can itemize it; the
// orchestrator counts the row and continues with the batch.
type Error struct {
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: %q: %v", e.Field, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Header aliases map the vocabulary third-party exports actually use onto
// canonical column names. Keys are lowercased with separators stripped.
var sessionHeaderAliases = map[string]string{
	"externalid": "external_id",
	"extid":      "external_id",
	"sessionid":  "external_id",
	"id":         "external_id",

	"title":        "title",
	"sessiontitle": "title",
	"eventtitle":   "title",

	"date":        "date",
	"sessiondate": "date",
	"eventdate":   "date",

	"status": "status",
	"state":  "status",

	"teacher":      "teacher_name",
	"teachername":  "teacher_name",
	"instructor":   "teacher_name",
	"teacheremail": "teacher_email",

	"notes":    "notes",
	"comments": "notes",
}

var personHeaderAliases = map[string]string{
	"externalid":  "external_id",
	"extid":       "external_id",
	"personid":    "external_id",
	"volunteerid": "external_id",
	"id":          "external_id",

	"name":     "name",
	"fullname": "name",

	"email":        "email",
	"emailaddress": "email",
	"mail":         "email",

	"role": "role",
	"type": "role",

	"notes":    "notes",
	"comments": "notes",
}

// Session canonicalizes a raw session row. Pure function: no side effects,
// no store access. Pointer fields on the result are nil when the source
// column was absent and non-nil (possibly empty) when it was present.
func Session(rec model.Record) (model.SessionRow, error) {
	vals := canonicalize(rec.Values, sessionHeaderAliases)
	row := model.SessionRow{Seq: rec.Seq}

	if ext, ok := vals["external_id"]; ok {
		row.ExternalID = CollapseIdentifier(ext)
	}

	if title, ok := vals["title"]; ok {
		// Free text keeps internal whitespace; only the edges are trimmed
		t := strings.TrimSpace(title)
		row.Title = &t
	}

	if raw, ok := vals["date"]; ok {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			row.Date = nil // blank date column carries no information
		} else {
			parsed, err := ParseDate(trimmed)
			if err != nil {
				return row, &Error{Field: "date", Value: raw, Err: err}
			}
			row.Date = &parsed
		}
	}

	if raw, ok := vals["status"]; ok {
		status := MapStatus(raw)
		row.Status = &status
		if status.Code == model.StatusOther {
			row.Warnings = append(row.Warnings,
				fmt.Sprintf("unmapped status literal %q preserved", status.Raw))
		}
	}

	ref := model.PersonRef{}
	if name, ok := vals["teacher_name"]; ok {
		ref.Name = strings.TrimSpace(name)
	}
	if email, ok := vals["teacher_email"]; ok {
		normalized, valid := NormalizeEmail(email)
		ref.Email = normalized
		if !valid && normalized != "" {
			row.Warnings = append(row.Warnings,
				fmt.Sprintf("malformed teacher email %q retained", email))
		}
	}
	if !ref.IsZero() {
		row.TeacherRef = &ref
	}

	if notes, ok := vals["notes"]; ok {
		n := strings.TrimSpace(notes)
		row.Notes = &n
	}

	return row, nil
}

// Person canonicalizes a raw teacher/volunteer row
func Person(rec model.Record) (model.PersonRow, error) {
	vals := canonicalize(rec.Values, personHeaderAliases)
	row := model.PersonRow{Seq: rec.Seq}

	if ext, ok := vals["external_id"]; ok {
		row.ExternalID = CollapseIdentifier(ext)
	}

	if name, ok := vals["name"]; ok {
		n := strings.TrimSpace(name)
		row.Name = &n
	}

	if email, ok := vals["email"]; ok {
		// Malformed emails are retained as-is and surfaced as a warning:
		// the pipeline favors reviewable unmatched rows over dropped data
		normalized, valid := NormalizeEmail(email)
		row.Email = &normalized
		if !valid && normalized != "" {
			row.Warnings = append(row.Warnings,
				fmt.Sprintf("malformed email %q retained", email))
		}
	}

	if raw, ok := vals["role"]; ok {
		role, err := MapRole(raw)
		if err != nil {
			return row, &Error{Field: "role", Value: raw, Err: err}
		}
		row.Role = role
	}

	if notes, ok := vals["notes"]; ok {
		n := strings.TrimSpace(notes)
		row.Notes = &n
	}

	return row, nil
}

// canonicalize resolves source headers to canonical column names. Unknown
// headers are dropped; duplicate aliases keep the first occurrence.
func canonicalize(values map[string]string, aliases map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for header, value := range values {
		key := strings.ToLower(strings.TrimSpace(header))
		key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
		canonical, known := aliases[key]
		if !known {
			continue
		}
		if _, dup := out[canonical]; dup {
			continue
		}
		out[canonical] = value
	}
	return out
}
