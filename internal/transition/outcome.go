// Package transition holds the state transitions applied by the optimistic
// update loop. Every transition may run any number of times against different
// snapshots of the same entity, so each one derives its decision purely from
// the snapshot it receives and never edits that snapshot in place.
package transition

import "idcore/pkg/domain"

// Outcome is the tagged result of a transition: either the snapshot is left
// as is and nothing needs writing, or a new state must be persisted.
type Outcome struct {
	state   *domain.Entity
	mutated bool
}

// Unchanged signals that current needs no write.
func Unchanged(current *domain.Entity) Outcome {
	return Outcome{state: current}
}

// Mutated signals that next must be persisted.
func Mutated(next *domain.Entity) Outcome {
	return Outcome{state: next, mutated: true}
}

// IsMutated reports whether the outcome requires a write.
func (o Outcome) IsMutated() bool { return o.mutated }

// State returns the resulting entity. For Unchanged outcomes this is the
// snapshot that was passed in and may be nil.
func (o Outcome) State() *domain.Entity { return o.state }

// Func is invoked by the optimistic update loop with the freshly read entity
// (nil when absent) and the zero-based attempt index.
type Func func(current *domain.Entity, attempt int) (Outcome, error)
