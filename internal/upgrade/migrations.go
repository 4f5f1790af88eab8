package upgrade

import (
	"context"
	"slices"

	"idcore/pkg/domain"
)

// Built-in migration tags.
const (
	TagNormalizeConsumptions = "normalize-consumptions"
	TagPruneInvalidRanges    = "prune-invalid-ranges"
)

// DefaultMigrations returns the migrations every deployment runs, in order.
func DefaultMigrations() []Migration {
	return []Migration{
		{Tag: TagNormalizeConsumptions, Procedure: NormalizeConsumptions},
		{Tag: TagPruneInvalidRanges, Procedure: PruneInvalidRanges},
	}
}

// NormalizeConsumptions sorts and de-duplicates every consumption array and
// drops negative numbers, which no allocation can produce.
func NormalizeConsumptions(_ context.Context, _ string, state *domain.Entity) (*domain.Entity, error) {
	for key, ids := range state.Consumptions {
		kept := make([]int, 0, len(ids))
		for _, id := range ids {
			if id >= 0 {
				kept = append(kept, id)
			}
		}
		state.Consumptions[key] = domain.SortedUnique(kept)
	}
	return state, nil
}

// PruneInvalidRanges removes declared ranges that are empty or non-positive.
func PruneInvalidRanges(_ context.Context, _ string, state *domain.Entity) (*domain.Entity, error) {
	if state.Ranges == nil {
		return state, nil
	}
	state.Ranges = slices.DeleteFunc(slices.Clone(state.Ranges), func(r domain.Range) bool {
		return !r.Valid()
	})
	return state, nil
}
