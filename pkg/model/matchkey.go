// pkg/model/matchkey.go
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// MatchKey is the composite derived from a row's identifying attributes.
// It is computed per row and used transiently to query the entity store;
// only its hash is persisted (on unmatched records, for deduplication).
type MatchKey struct {
	Kind       EntityKind
	ExternalID string
	Composite  string
}

// HasExternalID reports whether a tier-1 exact match can be attempted
func (k MatchKey) HasExternalID() bool {
	return k.ExternalID != ""
}

// HasComposite reports whether a tier-2 fallback match can be attempted
func (k MatchKey) HasComposite() bool {
	return k.Composite != ""
}

// AttemptedKeys lists the keys that were tried, for unmatched-record review
func (k MatchKey) AttemptedKeys() []string {
	keys := make([]string, 0, 2)
	if k.ExternalID != "" {
		keys = append(keys, "external_id="+k.ExternalID)
	}
	if k.Composite != "" {
		keys = append(keys, "composite="+k.Composite)
	}
	return keys
}

// Hash returns a stable digest of the match key. Unmatched-record
// deduplication is keyed on this digest, so a corrected typo that changes
// the key yields a new pending entry rather than refreshing the old one.
func (k MatchKey) Hash() string {
	h := sha256.New()
	h.Write([]byte(string(k.Kind)))
	h.Write([]byte{0})
	h.Write([]byte(k.ExternalID))
	h.Write([]byte{0})
	h.Write([]byte(k.Composite))
	return hex.EncodeToString(h.Sum(nil))
}

// EventCompositeKey builds the fallback key for events: normalized title
// plus the date truncated to the day
func EventCompositeKey(title string, date time.Time) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" || date.IsZero() {
		return ""
	}
	return t + "|" + date.UTC().Format("2006-01-02")
}

// PersonCompositeKey builds the fallback key for people: normalized email
func PersonCompositeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
