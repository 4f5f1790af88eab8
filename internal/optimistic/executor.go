// Package optimistic runs state transitions against a versioned store using
// read, transform and compare-and-swap, retrying on version conflicts.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"idcore/internal/logger"
	"idcore/internal/transition"
	"idcore/pkg/domain"
)

// ErrRetryBudgetExceeded is returned when every allowed attempt lost its
// compare-and-swap to a concurrent writer.
var ErrRetryBudgetExceeded = errors.New("optimistic update retry budget exceeded")

// Observer receives conflict and attempt statistics.
type Observer interface {
	ObserveConflict()
	ObserveAttempts(attempts int, written bool)
}

type noopObserver struct{}

func (noopObserver) ObserveConflict()          {}
func (noopObserver) ObserveAttempts(int, bool) {}

// Result is the outcome of one Update call.
type Result struct {
	// Entity is the persisted state after the call; nil when the entity is
	// still absent.
	Entity *domain.Entity
	// Version identifies Entity in the store.
	Version domain.Version
	// Written reports whether the call stored a new revision.
	Written bool
	// Attempts counts transition invocations.
	Attempts int
}

// Executor repeatedly applies a transition until it either settles on an
// unchanged state or its write wins the compare-and-swap.
type Executor struct {
	store    domain.EntityStore
	budget   int
	backoff  func() backoff.BackOff
	logger   logger.Logger
	observer Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryBudget sets the highest attempt index; an update makes at most
// budget+1 attempts.
func WithRetryBudget(budget int) Option {
	return func(x *Executor) {
		if budget > 0 {
			x.budget = budget
		}
	}
}

// WithBackOff installs a policy for the wait between conflicting attempts.
// The factory is called once per Update.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(x *Executor) {
		if factory != nil {
			x.backoff = factory
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(l logger.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithObserver sets the statistics sink.
func WithObserver(o Observer) Option {
	return func(x *Executor) {
		if o != nil {
			x.observer = o
		}
	}
}

// ExponentialBackOff returns a factory for jittered exponential waits that
// start at initial and never exceed maxInterval.
func ExponentialBackOff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = 0
		return b
	}
}

// New constructs an executor over store.
func New(store domain.EntityStore, opts ...Option) *Executor {
	x := &Executor{
		store:    store,
		budget:   transition.DefaultRetryBudget,
		backoff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		logger:   logger.Noop{},
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Read returns the latest stored entity, or nil when none exists.
func (x *Executor) Read(ctx context.Context, id string) (*domain.Entity, domain.Version, error) {
	e, v, err := x.store.Read(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", id, err)
	}
	return e, v, nil
}

// Update applies fn to the entity stored under id. fn is re-invoked with a
// freshly read snapshot and an incremented attempt index after every lost
// compare-and-swap. An Unchanged outcome ends the loop without writing.
func (x *Executor) Update(ctx context.Context, id string, fn transition.Func) (Result, error) {
	wait := x.backoff()
	wait.Reset()
	attempts := 0
	for attempt := 0; attempt <= x.budget; attempt++ {
		attempts = attempt + 1
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt}, err
		}
		current, version, err := x.Read(ctx, id)
		if err != nil {
			return Result{Attempts: attempt}, err
		}
		out, err := fn(current, attempt)
		if err != nil {
			return Result{Entity: current, Version: version, Attempts: attempt + 1}, err
		}
		if !out.IsMutated() {
			x.observer.ObserveAttempts(attempt+1, false)
			return Result{Entity: current, Version: version, Attempts: attempt + 1}, nil
		}

		next := out.State()
		written, err := x.store.Write(ctx, id, next, version)
		if err == nil {
			x.observer.ObserveAttempts(attempt+1, true)
			return Result{Entity: next, Version: written, Written: true, Attempts: attempt + 1}, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return Result{Entity: current, Version: version, Attempts: attempt + 1}, fmt.Errorf("write %s: %w", id, err)
		}

		x.observer.ObserveConflict()
		x.logger.Debug("optimistic update conflict", "id", id, "attempt", attempt, "version", string(version))
		delay := wait.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{Attempts: attempt + 1}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	x.observer.ObserveAttempts(attempts, false)
	x.logger.Warn("optimistic update gave up", "id", id, "attempts", attempts)
	return Result{Attempts: attempts}, fmt.Errorf("%w: %s after %d attempts", ErrRetryBudgetExceeded, id, attempts)
}
