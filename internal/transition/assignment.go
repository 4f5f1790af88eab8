package transition

import (
	"slices"

	"idcore/pkg/domain"
)

// AssignmentResult reports whether an AddAssignment actually recorded the
// number. It reflects the last attempt the update loop ran.
type AssignmentResult struct {
	Success bool
}

// AddAssignment records a manually chosen id under key. An id that is already
// consumed leaves the entity untouched and reports failure.
func AddAssignment(key string, id int, result *AssignmentResult) Func {
	return func(current *domain.Entity, _ int) (Outcome, error) {
		if current == nil {
			next := domain.NewEntity()
			next.Consumptions[key] = []int{id}
			result.Success = true
			return Mutated(next), nil
		}
		existing := current.Consumptions[key]
		if slices.Contains(existing, id) {
			result.Success = false
			return Unchanged(current), nil
		}
		next := current.Clone()
		next.Consumptions[key] = insertSorted(existing, id)
		result.Success = true
		return Mutated(next), nil
	}
}

// RemoveAssignment releases id from key. The key itself is kept even when its
// array becomes empty.
func RemoveAssignment(key string, id int) Func {
	return func(current *domain.Entity, _ int) (Outcome, error) {
		if current == nil {
			return Mutated(domain.NewEntity()), nil
		}
		existing, ok := current.Consumptions[key]
		if !ok || !slices.Contains(existing, id) {
			return Unchanged(current), nil
		}
		remaining := make([]int, 0, len(existing)-1)
		for _, v := range existing {
			if v != id {
				remaining = append(remaining, v)
			}
		}
		next := current.Clone()
		next.Consumptions[key] = remaining
		return Mutated(next), nil
	}
}
