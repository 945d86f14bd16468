// pkg/model/status.go
package model

import "fmt"

// StatusCode is the closed status enumeration used internally
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusDraft
	StatusPublished
	StatusCompleted
	StatusCancelled
	// StatusOther carries an upstream literal the mapping table does not
	// know. The raw text is preserved so vocabulary drift upstream never
	// drops rows.
	StatusOther
)

// String returns the enumeration name, used for audit serialization
func (c StatusCode) String() string {
	switch c {
	case StatusUnknown:
		return "unknown"
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusOther:
		return "other"
	default:
		return fmt.Sprintf("statuscode(%d)", int(c))
	}
}

// Status is a tagged value: a closed code plus the raw upstream literal
// when the code is StatusOther
type Status struct {
	Code StatusCode
	Raw  string
}

// String renders the status for audit entries and summaries. Unmapped
// literals render with their original text so operators can see what the
// source actually said.
func (s Status) String() string {
	if s.Code == StatusOther {
		return "other:" + s.Raw
	}
	return s.Code.String()
}

// Equal compares two statuses including the raw literal of unmapped values
func (s Status) Equal(other Status) bool {
	if s.Code != other.Code {
		return false
	}
	if s.Code == StatusOther {
		return s.Raw == other.Raw
	}
	return true
}

// IsZero reports whether the status has never been set
func (s Status) IsZero() bool {
	return s.Code == StatusUnknown && s.Raw == ""
}

// ParseStatusString reconstructs a Status from its String form, used when
// loading persisted rows
func ParseStatusString(text string) Status {
	if len(text) > 6 && text[:6] == "other:" {
		return Status{Code: StatusOther, Raw: text[6:]}
	}
	switch text {
	case "draft":
		return Status{Code: StatusDraft}
	case "published":
		return Status{Code: StatusPublished}
	case "completed":
		return Status{Code: StatusCompleted}
	case "cancelled":
		return Status{Code: StatusCancelled}
	default:
		return Status{Code: StatusUnknown}
	}
}
