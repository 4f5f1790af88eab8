// Package upgrade applies ordered, idempotent migrations to persisted
// entities. Several processes may run the same migrations against the same
// entity at once; each tag is still applied exactly once.
package upgrade

import (
	"context"
	"errors"
	"fmt"

	"idcore/internal/logger"
	"idcore/internal/optimistic"
	"idcore/internal/transition"
	"idcore/pkg/domain"
)

var (
	// ErrMissingProcedure is returned when a pending tag has no procedure.
	ErrMissingProcedure = errors.New("upgrade procedure missing")
	// ErrUpgradeTargetMissing is returned when the entity being upgraded is
	// no longer stored.
	ErrUpgradeTargetMissing = errors.New("upgrade target entity missing")
)

// Procedure transforms an entity for one migration. It receives a private
// copy of the state and may return it modified or replace it.
type Procedure func(ctx context.Context, entityID string, state *domain.Entity) (*domain.Entity, error)

// Migration pairs a tag with the procedure that applies it.
type Migration struct {
	Tag       string
	Procedure Procedure
}

// Store is what the runner needs from the optimistic layer: a fresh read and
// the retrying update. *optimistic.Executor satisfies it.
type Store interface {
	Read(ctx context.Context, id string) (*domain.Entity, domain.Version, error)
	Update(ctx context.Context, id string, fn transition.Func) (optimistic.Result, error)
}

// Runner applies a fixed, ordered list of migrations.
type Runner struct {
	migrations []Migration
	logger     logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner validates migrations and returns a runner applying them in the
// given order. Tags must be non-empty and unique.
func NewRunner(migrations []Migration, opts ...Option) (*Runner, error) {
	seen := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		if m.Tag == "" {
			return nil, fmt.Errorf("upgrade migration with empty tag")
		}
		if _, dup := seen[m.Tag]; dup {
			return nil, fmt.Errorf("upgrade migration %s registered twice", m.Tag)
		}
		seen[m.Tag] = struct{}{}
	}
	r := &Runner{migrations: append([]Migration(nil), migrations...), logger: logger.Noop{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Tags returns the registered tags in application order.
func (r *Runner) Tags() []string {
	out := make([]string, len(r.migrations))
	for i, m := range r.migrations {
		out[i] = m.Tag
	}
	return out
}

// Pending returns the migrations not yet recorded on e.
func (r *Runner) Pending(e *domain.Entity) []Migration {
	var out []Migration
	for _, m := range r.migrations {
		if !e.HasUpgradeTag(m.Tag) {
			out = append(out, m)
		}
	}
	return out
}

// Run brings the stored entity up to date. loaded is only used to decide
// whether anything is pending; every migration works from a fresh read.
// When nothing is pending loaded is returned without touching the store.
func (r *Runner) Run(ctx context.Context, store Store, entityID string, loaded *domain.Entity) (*domain.Entity, error) {
	pending := r.Pending(loaded)
	if len(pending) == 0 {
		return loaded, nil
	}

	current := loaded
	for _, m := range pending {
		if m.Procedure == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingProcedure, m.Tag)
		}
		latest, _, err := store.Read(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("upgrade %s: %w", m.Tag, err)
		}
		if latest == nil {
			return nil, fmt.Errorf("%w: %s", ErrUpgradeTargetMissing, entityID)
		}

		res, err := store.Update(ctx, entityID, r.apply(ctx, entityID, m))
		if err != nil {
			return nil, fmt.Errorf("upgrade %s on %s: %w", m.Tag, entityID, err)
		}
		if res.Entity == nil {
			return nil, fmt.Errorf("%w: %s", ErrUpgradeTargetMissing, entityID)
		}
		if res.Written {
			r.logger.Info("upgrade applied", "id", entityID, "tag", m.Tag, "attempts", res.Attempts)
		} else {
			r.logger.Debug("upgrade already applied", "id", entityID, "tag", m.Tag)
		}
		current = res.Entity
	}
	return current, nil
}

// apply builds the transition for one migration. The tag check runs on every
// attempt so a procedure never runs against a state that already carries it.
func (r *Runner) apply(ctx context.Context, entityID string, m Migration) transition.Func {
	return func(state *domain.Entity, _ int) (transition.Outcome, error) {
		if state == nil {
			return transition.Outcome{}, fmt.Errorf("%w: %s", ErrUpgradeTargetMissing, entityID)
		}
		if state.HasUpgradeTag(m.Tag) {
			return transition.Unchanged(state), nil
		}
		next, err := m.Procedure(ctx, entityID, state.Clone())
		if err != nil {
			return transition.Outcome{}, err
		}
		if next == nil {
			next = state.Clone()
		}
		tags := make([]string, 0, len(state.UpgradeTags)+1)
		tags = append(tags, state.UpgradeTags...)
		next.UpgradeTags = append(tags, m.Tag)
		return transition.Mutated(next), nil
	}
}
