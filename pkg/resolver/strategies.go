// pkg/resolver/strategies.go
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/store"
)

// MatchStrategy is one tier of the matching hierarchy. Strategies are
// constructed once at setup and consulted in order; the first entity
// returned wins. A nil entity with nil error means "no match at this tier".
type MatchStrategy interface {
	Name() string
	AttemptMatch(ctx context.Context, key model.MatchKey) (*model.Entity, error)
}

// DefaultStrategies returns the standard ordered hierarchy: exact
// external-identifier match first, composite fallback second. The ordering
// is deliberate; external identifiers are the highest-confidence signal
// and always take precedence.
func DefaultStrategies(entities store.EntityStore) []MatchStrategy {
	return []MatchStrategy{
		&externalIDStrategy{entities: entities},
		&compositeKeyStrategy{entities: entities},
	}
}

// externalIDStrategy matches on the stable external-system identifier
type externalIDStrategy struct {
	entities store.EntityStore
}

func (s *externalIDStrategy) Name() string { return "external_id" }

func (s *externalIDStrategy) AttemptMatch(ctx context.Context, key model.MatchKey) (*model.Entity, error) {
	if !key.HasExternalID() {
		return nil, nil
	}

	entity, err := s.entities.FindByExternalID(ctx, key.Kind, key.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("external_id match failed: %w", err)
	}
	return entity, nil
}

// compositeKeyStrategy matches on the normalized fallback key: title plus
// day for events, email for people
type compositeKeyStrategy struct {
	entities store.EntityStore
}

func (s *compositeKeyStrategy) Name() string { return "composite_key" }

func (s *compositeKeyStrategy) AttemptMatch(ctx context.Context, key model.MatchKey) (*model.Entity, error) {
	if !key.HasComposite() {
		return nil, nil
	}

	entity, err := s.entities.FindByCompositeKey(ctx, key.Kind, key.Composite)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("composite_key match failed: %w", err)
	}

	// A composite hit on an entity that already carries a different
	// external identifier is a distinct identity that happens to share
	// the fallback key. Treating it as a match would merge two records;
	// reject and let the row create its own entity.
	if key.HasExternalID() && entity.ExternalID != "" && entity.ExternalID != key.ExternalID {
		return nil, nil
	}

	return entity, nil
}
