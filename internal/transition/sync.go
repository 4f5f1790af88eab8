package transition

import (
	"fmt"

	"idcore/pkg/domain"
)

// SyncMode selects how reported consumptions combine with stored ones.
type SyncMode int

const (
	// SyncFull replaces all stored consumptions with the reported set.
	SyncFull SyncMode = iota
	// SyncMerge unions the reported set into the stored one per key.
	SyncMerge
)

func (m SyncMode) String() string {
	switch m {
	case SyncFull:
		return "full"
	case SyncMerge:
		return "merge"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode maps "full" and "merge" to their modes.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "full", "":
		return SyncFull, nil
	case "merge":
		return SyncMerge, nil
	default:
		return SyncFull, fmt.Errorf("unknown sync mode %q", s)
	}
}

// SyncConsumptions folds ids into the entity according to mode. The reserved
// fields are always carried over from the snapshot.
func SyncConsumptions(ids map[string][]int, mode SyncMode) Func {
	return func(current *domain.Entity, _ int) (Outcome, error) {
		next := domain.NewEntity()
		if current != nil {
			next.Authorization = current.Authorization
			next.Ranges = current.Ranges
			next.UpgradeTags = current.UpgradeTags
			if mode == SyncMerge {
				for key, stored := range current.Consumptions {
					next.Consumptions[key] = stored
				}
			}
		}
		for key, reported := range ids {
			if mode == SyncMerge {
				merged := make([]int, 0, len(next.Consumptions[key])+len(reported))
				merged = append(merged, next.Consumptions[key]...)
				merged = append(merged, reported...)
				next.Consumptions[key] = domain.SortedUnique(merged)
				continue
			}
			next.Consumptions[key] = domain.SortedUnique(reported)
		}
		return Mutated(next), nil
	}
}
