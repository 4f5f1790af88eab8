// Package allocator picks free numbers from ordered ranges given the numbers
// already consumed. All functions are pure.
package allocator

import (
	"slices"

	"idcore/pkg/domain"
)

// OwnFieldRange returns the range prepended to the declared ranges when
// allocating for an extended key whose owning object belongs to them.
func OwnFieldRange() domain.Range {
	return domain.Range{From: 1, To: 49999}
}

// FindFirstAvailableID returns the first number absent from consumed, scanning
// ranges in the given order and each range upward. consumed must be
// sorted ascending. Zero means every range is exhausted. Ranges may arrive in
// any order and may overlap; the result is never a consumed number.
func FindFirstAvailableID(ranges []domain.Range, consumed []int) int {
	if len(ranges) == 0 {
		return 0
	}
	if len(consumed) == 0 {
		return ranges[0].From
	}

	// The cursor is shared by all ranges. It rewinds only when a range starts
	// at or below a number it already passed.
	i := 0
	for _, r := range ranges {
		if i > 0 && consumed[i-1] >= r.From {
			i, _ = slices.BinarySearch(consumed, r.From)
		}
		for j := r.From; j <= r.To; j++ {
			if i >= len(consumed) {
				return j
			}
			for consumed[i] < j {
				i++
				if i >= len(consumed) {
					return j
				}
			}
			taken := consumed[i]
			i++
			if taken > j {
				return j
			}
		}
	}
	return 0
}

// FindAvailablePerRange returns, for each range that still has capacity, the
// first free number within it. Exhausted ranges are omitted, so the result may
// be shorter than ranges. Each range is checked against the full consumed set.
func FindAvailablePerRange(ranges []domain.Range, consumed []int) []int {
	out := make([]int, 0, len(ranges))
	for _, r := range ranges {
		id := FindFirstAvailableID([]domain.Range{r}, consumed)
		if id > 0 && r.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// AllocationRanges returns the ranges numbers are assigned from for key.
// Extended keys owned by an object inside declared gain OwnFieldRange() ahead of
// the declared ranges; all other keys use declared as is.
func AllocationRanges(key string, declared []domain.Range) []domain.Range {
	k := domain.ParseKey(key)
	if !k.Extended() || !domain.RangesContain(declared, k.OwnerID) {
		return declared
	}
	out := make([]domain.Range, 0, len(declared)+1)
	out = append(out, OwnFieldRange())
	return append(out, declared...)
}
