package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"idcore/internal/allocator"
	"idcore/internal/optimistic"
	"idcore/internal/transition"
	"idcore/internal/upgrade"
	"idcore/pkg/domain"
)

// EntityLister is implemented by stores that can enumerate entity ids.
type EntityLister interface {
	List(ctx context.Context) ([]string, error)
}

// Service is the numbering surface called by the request layer. Request
// validation and authorization policy happen before a Service method runs.
type Service struct {
	store    domain.EntityStore
	exec     *optimistic.Executor
	upgrades *upgrade.Runner
	opts     serviceOptions
}

// NewService constructs a service over store.
func NewService(store domain.EntityStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("entity store required")
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	runner, err := upgrade.NewRunner(o.migrations, upgrade.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return &Service{
		store:    store,
		exec:     optimistic.New(store, o.executorOptions()...),
		upgrades: runner,
		opts:     o,
	}, nil
}

// RetryBudget returns the configured retry budget.
func (s *Service) RetryBudget() int { return s.opts.budget }

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, op, id, key string, fn func(context.Context) (int, error)) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := s.opts.clock.Now()
	attempts, err := fn(ctx)
	duration := s.opts.clock.Now().Sub(start)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		EntityID:  id,
		Key:       key,
		Status:    AuditStatusSuccess,
		Attempts:  attempts,
		Timestamp: start,
		Duration:  duration,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.opts.logger.Error("operation failed", "operation", op, "id", id, "key", key, "attempts", attempts, "error", err)
	} else {
		s.opts.logger.Debug("operation completed", "operation", op, "id", id, "key", key, "attempts", attempts, "duration", duration)
	}
	s.opts.audit.Record(ctx, entry)
	return err
}

// load reads id and brings it up to date. An absent entity yields nil.
func (s *Service) load(ctx context.Context, id string) (*domain.Entity, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	e, _, err := s.exec.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return s.upgrades.Run(ctx, s.exec, id, e)
}

// update runs fn through the executor, translating budget exhaustion into
// ErrConflict.
func (s *Service) update(ctx context.Context, id string, fn transition.Func) (optimistic.Result, error) {
	res, err := s.exec.Update(ctx, id, fn)
	if errors.Is(err, optimistic.ErrRetryBudgetExceeded) {
		return res, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return res, err
}

// Load returns the entity stored under id after applying pending upgrades.
// It returns nil when nothing is stored yet.
func (s *Service) Load(ctx context.Context, id string) (*domain.Entity, error) {
	var out *domain.Entity
	err := s.run(ctx, OpLoad, id, "", func(ctx context.Context) (int, error) {
		var err error
		out, err = s.load(ctx, id)
		return 0, err
	})
	return out, err
}

// NextIDRequest asks for the next free number of one consumption key.
type NextIDRequest struct {
	EntityID string
	// Type is the consumption key, bare or extended.
	Type string
	// Ranges are the ranges the client currently declares.
	Ranges []domain.Range
	// PerRange reports the first free number of every range with capacity.
	PerRange bool
	// Commit records the number as consumed. Without it the call is a
	// read-only preview.
	Commit bool
}

// NextIDResult is the outcome of NextID.
type NextIDResult struct {
	// ID is the previewed or committed number; zero when none is left.
	ID int `json:"id"`
	// IDs holds the per-range numbers when PerRange was requested. They are
	// the preview taken before any commit, so after a retried commit ID may
	// no longer equal IDs[0].
	IDs []int `json:"ids,omitempty"`
	// Available is false when the ranges are exhausted.
	Available bool `json:"available"`
	// Updated is true when a commit wrote the number.
	Updated bool `json:"updated"`
	// Attempts counts commit attempts.
	Attempts int `json:"attempts"`
}

// NextID previews and optionally commits the next free number for req.Type.
// A committed number may differ from the previewed one when a concurrent
// writer took it first.
func (s *Service) NextID(ctx context.Context, req NextIDRequest) (NextIDResult, error) {
	var out NextIDResult
	err := s.run(ctx, OpNextID, req.EntityID, req.Type, func(ctx context.Context) (int, error) {
		if req.Type == "" {
			return 0, fmt.Errorf("consumption key required")
		}
		e, err := s.load(ctx, req.EntityID)
		if err != nil {
			return 0, err
		}
		assignFrom := allocator.AllocationRanges(req.Type, req.Ranges)
		consumed := e.Consumed(req.Type)
		if req.PerRange {
			out.IDs = allocator.FindAvailablePerRange(assignFrom, consumed)
			if len(out.IDs) > 0 {
				out.ID = out.IDs[0]
			}
		} else {
			out.ID = allocator.FindFirstAvailableID(assignFrom, consumed)
		}
		out.Available = out.ID > 0
		if !req.Commit || !out.Available {
			return 0, nil
		}

		uctx := transition.NewUpdateContext(out.ID)
		fn := transition.CommitAllocatedID(transition.CommitParams{
			Type:       req.Type,
			AssignFrom: assignFrom,
			AppRanges:  req.Ranges,
			Budget:     s.opts.budget,
		}, uctx)
		res, err := s.update(ctx, req.EntityID, fn)
		out.Attempts = res.Attempts
		if err != nil {
			return res.Attempts, err
		}
		out.ID = uctx.ID
		out.Available = uctx.Available
		out.Updated = uctx.Updated
		if !uctx.Available {
			out.ID = 0
			return res.Attempts, nil
		}
		if !uctx.Updated && res.Attempts > s.opts.budget {
			return res.Attempts, fmt.Errorf("%w: %s after %d attempts", ErrConflict, req.EntityID, res.Attempts)
		}
		return res.Attempts, nil
	})
	return out, err
}

// AddAssignment records a manually chosen number. It reports false when the
// number was already consumed.
func (s *Service) AddAssignment(ctx context.Context, id, key string, number int) (bool, error) {
	var result transition.AssignmentResult
	err := s.run(ctx, OpAddAssignment, id, key, func(ctx context.Context) (int, error) {
		if err := s.prepareKey(ctx, id, key, number); err != nil {
			return 0, err
		}
		res, err := s.update(ctx, id, transition.AddAssignment(key, number, &result))
		return res.Attempts, err
	})
	return result.Success, err
}

// RemoveAssignment releases a number.
func (s *Service) RemoveAssignment(ctx context.Context, id, key string, number int) error {
	return s.run(ctx, OpRemoveAssignment, id, key, func(ctx context.Context) (int, error) {
		if err := s.prepareKey(ctx, id, key, number); err != nil {
			return 0, err
		}
		res, err := s.update(ctx, id, transition.RemoveAssignment(key, number))
		return res.Attempts, err
	})
}

func (s *Service) prepareKey(ctx context.Context, id, key string, number int) error {
	if key == "" || domain.IsReservedKey(key) {
		return fmt.Errorf("invalid consumption key %q", key)
	}
	if number <= 0 {
		return fmt.Errorf("invalid number %d", number)
	}
	_, err := s.load(ctx, id)
	return err
}

// SyncConsumptions replaces or merges the stored consumptions with ids.
func (s *Service) SyncConsumptions(ctx context.Context, id string, ids map[string][]int, mode transition.SyncMode) (*domain.Entity, error) {
	var out *domain.Entity
	err := s.run(ctx, OpSyncConsumptions, id, mode.String(), func(ctx context.Context) (int, error) {
		for key, nums := range ids {
			if key == "" || domain.IsReservedKey(key) {
				return 0, fmt.Errorf("invalid consumption key %q", key)
			}
			for _, n := range nums {
				if n < 0 {
					return 0, fmt.Errorf("invalid number %d for %q", n, key)
				}
			}
		}
		if _, err := s.load(ctx, id); err != nil {
			return 0, err
		}
		res, err := s.update(ctx, id, transition.SyncConsumptions(ids, mode))
		out = res.Entity
		return res.Attempts, err
	})
	return out, err
}

// Authorize stores a freshly generated authorization key and returns it.
// Whether an existing authorization may be replaced is decided by the caller.
func (s *Service) Authorize(ctx context.Context, id, userName, userEmail string) (string, error) {
	key := uuid.NewString()
	err := s.run(ctx, OpAuthorize, id, "", func(ctx context.Context) (int, error) {
		if _, err := s.load(ctx, id); err != nil {
			return 0, err
		}
		res, err := s.update(ctx, id, transition.Authorize(key, userName, userEmail, s.opts.clock.Now))
		return res.Attempts, err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Deauthorize removes the stored authorization.
func (s *Service) Deauthorize(ctx context.Context, id string) error {
	return s.run(ctx, OpDeauthorize, id, "", func(ctx context.Context) (int, error) {
		if _, err := s.load(ctx, id); err != nil {
			return 0, err
		}
		res, err := s.update(ctx, id, transition.Deauthorize())
		return res.Attempts, err
	})
}

// UpgradeReport summarizes an UpgradeAll run.
type UpgradeReport struct {
	Scanned  int      `json:"scanned"`
	Upgraded []string `json:"upgraded"`
}

// UpgradeAll applies pending migrations to every stored entity whose id
// starts with prefix.
func (s *Service) UpgradeAll(ctx context.Context, prefix string) (UpgradeReport, error) {
	var report UpgradeReport
	err := s.run(ctx, OpUpgradeAll, prefix, "", func(ctx context.Context) (int, error) {
		lister, ok := s.store.(EntityLister)
		if !ok {
			return 0, ErrListUnsupported
		}
		ids, err := lister.List(ctx)
		if err != nil {
			return 0, fmt.Errorf("list entities: %w", err)
		}
		for _, id := range ids {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			report.Scanned++
			e, _, err := s.exec.Read(ctx, id)
			if err != nil {
				return 0, err
			}
			if e == nil || len(s.upgrades.Pending(e)) == 0 {
				continue
			}
			if _, err := s.upgrades.Run(ctx, s.exec, id, e); err != nil {
				return 0, fmt.Errorf("upgrade %s: %w", id, err)
			}
			report.Upgraded = append(report.Upgraded, id)
		}
		return 0, nil
	})
	return report, err
}
