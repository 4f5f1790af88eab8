package transition

import (
	"slices"

	"idcore/internal/allocator"
	"idcore/pkg/domain"
)

// DefaultRetryBudget is the attempt index at which an allocation commit gives
// up instead of chasing a contended entity further.
const DefaultRetryBudget = 100

// UpdateContext carries decisions a commit makes back to its caller, because
// the transition's return value is reserved for the new entity. A fresh
// context is created per logical request.
type UpdateContext struct {
	// ID is the candidate number on entry and the committed number on exit.
	ID int
	// Available turns false when the ranges were found exhausted.
	Available bool
	// Updated is true when the last attempt produced a write.
	Updated bool
	// UpdateAttempts is the last attempt index observed.
	UpdateAttempts int
}

// NewUpdateContext returns a context for committing candidate.
func NewUpdateContext(candidate int) *UpdateContext {
	return &UpdateContext{ID: candidate, Available: true}
}

// CommitParams configures CommitAllocatedID.
type CommitParams struct {
	// Type is the consumption key receiving the number.
	Type string
	// AssignFrom are the ranges a replacement number is drawn from when the
	// candidate was taken concurrently. When nil they are derived from Type
	// and AppRanges with allocator.AllocationRanges.
	AssignFrom []domain.Range
	// AppRanges are the ranges the client currently declares; they are
	// recorded on every written entity.
	AppRanges []domain.Range
	// Budget is the attempt index at which the commit aborts. Zero means
	// DefaultRetryBudget.
	Budget int
}

// CommitAllocatedID records ctx.ID as consumed for p.Type. When a concurrent
// writer already took the candidate, a replacement is drawn from the fresh
// snapshot; when none is left ctx.Available becomes false and nothing is
// written.
func CommitAllocatedID(p CommitParams, ctx *UpdateContext) Func {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	assignFrom := p.AssignFrom
	if assignFrom == nil {
		assignFrom = allocator.AllocationRanges(p.Type, p.AppRanges)
	}

	return func(current *domain.Entity, attempt int) (Outcome, error) {
		if attempt >= budget {
			ctx.Updated = false
			return Unchanged(current), nil
		}
		ctx.Updated = false
		ctx.UpdateAttempts = attempt

		// Candidates at or below zero cannot come from the allocator, which
		// reserves zero for exhaustion.
		if ctx.ID <= 0 {
			return Unchanged(current), nil
		}

		next := current.Clone()
		next.Ranges = p.AppRanges

		existing := next.Consumptions[p.Type]
		if len(existing) == 0 {
			next.Consumptions[p.Type] = []int{ctx.ID}
			ctx.Updated = true
			return Mutated(next), nil
		}

		if slices.Contains(existing, ctx.ID) {
			consumed := existing
			if !slices.IsSorted(consumed) {
				consumed = domain.SortedUnique(consumed)
			}
			ctx.ID = allocator.FindFirstAvailableID(assignFrom, consumed)
			// A taken number must never be written twice.
			if ctx.ID == 0 || slices.Contains(existing, ctx.ID) {
				ctx.Available = false
				return Unchanged(current), nil
			}
		}

		next.Consumptions[p.Type] = insertSorted(existing, ctx.ID)
		ctx.Updated = true
		return Mutated(next), nil
	}
}

// insertSorted returns a new sorted slice holding ids plus id. ids is never
// modified because it may be shared with other snapshots.
func insertSorted(ids []int, id int) []int {
	out := make([]int, 0, len(ids)+1)
	out = append(out, ids...)
	out = append(out, id)
	slices.Sort(out)
	return out
}
