// pkg/model/audit.go
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditSource tags where a mutation originated
type AuditSource string

const (
	SourceImport AuditSource = "import"
	SourceManual AuditSource = "manual"
	SourceSystem AuditSource = "system"
)

// ActorContext identifies who performed an action. It is passed explicitly
// through every mutating call; scope is captured at write time because a
// scoped administrator's assignments may change later.
type ActorContext struct {
	UserID string
	Role   string
	Scope  string // e.g. a district identifier; empty when unscoped
}

// SystemActor is the identity stamped on mutations the pipeline performs
// on its own behalf
var SystemActor = ActorContext{UserID: "system", Role: "system"}

// AuditLogEntry is an immutable field-level record of a mutation. Entries
// are append-only: never updated, never deleted.
type AuditLogEntry struct {
	ID         uuid.UUID
	EntityID   uuid.UUID
	EntityKind EntityKind

	Action   string
	Field    string // empty for entity-level actions such as create
	OldValue string
	NewValue string

	ActorID    string
	ActorRole  string
	ActorScope string
	Source     AuditSource
	Notes      string

	OccurredAt time.Time
}

// Audit action names
const (
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionBackfillID       = "backfill_external_id"
	ActionResolveUnmatched = "resolve_unmatched"
	ActionIgnoreUnmatched  = "ignore_unmatched"
	ActionFlagCreate       = "flag_create"
	ActionFlagResolve      = "flag_resolve"
)

// AuditValue serializes a value to the stable string representation audit
// entries use: enumerations by name, times as dates or RFC3339, structured
// values as JSON. Keeps the log diff-able and human-readable.
func AuditValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case Status:
		return val.String()
	case StatusCode:
		return val.String()
	case PersonRole:
		return string(val)
	case uuid.UUID:
		if val == uuid.Nil {
			return ""
		}
		return val.String()
	case time.Time:
		if val.IsZero() {
			return ""
		}
		if val.UTC().Truncate(24*time.Hour) == val.UTC() {
			return val.UTC().Format("2006-01-02")
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
