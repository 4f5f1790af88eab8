package optimistic

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"idcore/internal/transition"
	"idcore/pkg/domain"
)

// fakeStore is a minimal versioned store. beforeWrite runs ahead of the
// version check and may simulate a concurrent writer.
type fakeStore struct {
	mu          sync.Mutex
	data        map[string]*domain.Entity
	versions    map[string]int
	beforeWrite func(id string)
	writeErr    error
	writes      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]*domain.Entity{}, versions: map[string]int{}}
}

func (s *fakeStore) Read(_ context.Context, id string) (*domain.Entity, domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[id]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return e, domain.Version(strconv.Itoa(s.versions[id])), nil
}

func (s *fakeStore) Write(_ context.Context, id string, e *domain.Entity, expected domain.Version) (domain.Version, error) {
	if s.beforeWrite != nil {
		s.beforeWrite(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return "", s.writeErr
	}
	_, exists := s.data[id]
	current := domain.Version(strconv.Itoa(s.versions[id]))
	if (!exists && expected != "") || (exists && expected != current) {
		return "", domain.ErrVersionConflict
	}
	s.versions[id]++
	s.data[id] = e
	s.writes++
	return domain.Version(strconv.Itoa(s.versions[id])), nil
}

// put stores e directly, bumping the version like a foreign writer would.
func (s *fakeStore) put(id string, e *domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[id]++
	s.data[id] = e
}

type countingObserver struct {
	conflicts int
	attempts  []int
}

func (c *countingObserver) ObserveConflict() { c.conflicts++ }
func (c *countingObserver) ObserveAttempts(n int, _ bool) {
	c.attempts = append(c.attempts, n)
}

func TestUpdateWritesMutation(t *testing.T) {
	store := newFakeStore()
	x := New(store)
	var res transition.AssignmentResult
	out, err := x.Update(context.Background(), "app", transition.AddAssignment("table", 7, &res))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !out.Written || out.Attempts != 1 || out.Version != "1" || !res.Success {
		t.Fatalf("unexpected result %+v", out)
	}
	if !slices.Equal(store.data["app"].Consumptions["table"], []int{7}) {
		t.Fatalf("entity not stored")
	}
}

func TestUpdateUnchangedSkipsWrite(t *testing.T) {
	store := newFakeStore()
	store.put("app", &domain.Entity{Consumptions: map[string][]int{"table": {7}}})
	x := New(store)
	var res transition.AssignmentResult
	out, err := x.Update(context.Background(), "app", transition.AddAssignment("table", 7, &res))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Written || res.Success || store.writes != 0 {
		t.Fatalf("expected no write, got %+v writes=%d", out, store.writes)
	}
	if out.Entity != store.data["app"] {
		t.Fatalf("expected current entity returned")
	}
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	store := newFakeStore()
	obs := &countingObserver{}
	conflicts := 2
	store.beforeWrite = func(id string) {
		if conflicts > 0 {
			conflicts--
			cur := store.data[id].Clone()
			ids := append(slices.Clone(cur.Consumptions["table"]), 50000+conflicts)
			slices.Sort(ids)
			cur.Consumptions["table"] = ids
			store.put(id, cur)
		}
	}
	store.put("app", &domain.Entity{Consumptions: map[string][]int{"table": {}}})

	uctx := transition.NewUpdateContext(50000)
	fn := transition.CommitAllocatedID(transition.CommitParams{
		Type:      "table",
		AppRanges: []domain.Range{{From: 50000, To: 50009}},
	}, uctx)
	out, err := New(store, WithObserver(obs)).Update(context.Background(), "app", fn)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !out.Written || out.Attempts != 3 || obs.conflicts != 2 {
		t.Fatalf("unexpected result %+v conflicts=%d", out, obs.conflicts)
	}
	if uctx.UpdateAttempts != 2 || !uctx.Updated {
		t.Fatalf("unexpected context %+v", uctx)
	}
	ids := store.data["app"].Consumptions["table"]
	if len(ids) != 3 || slices.Index(ids, uctx.ID) < 0 {
		t.Fatalf("committed id %d not stored in %v", uctx.ID, ids)
	}
}

type alwaysMutate struct{ calls int }

func (a *alwaysMutate) fn(current *domain.Entity, _ int) (transition.Outcome, error) {
	a.calls++
	return transition.Mutated(current.Clone()), nil
}

func TestUpdateBudgetExceeded(t *testing.T) {
	store := newFakeStore()
	store.put("app", domain.NewEntity())
	store.beforeWrite = func(id string) { store.put(id, domain.NewEntity()) }
	m := &alwaysMutate{}
	out, err := New(store, WithRetryBudget(4)).Update(context.Background(), "app", m.fn)
	if !errors.Is(err, ErrRetryBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if m.calls != 5 || out.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got calls=%d attempts=%d", m.calls, out.Attempts)
	}
}

func TestUpdateCommitAbortsAtBudgetWithoutError(t *testing.T) {
	store := newFakeStore()
	store.put("app", domain.NewEntity())
	store.beforeWrite = func(id string) { store.put(id, domain.NewEntity()) }
	uctx := transition.NewUpdateContext(50000)
	fn := transition.CommitAllocatedID(transition.CommitParams{
		Type:      "table",
		AppRanges: []domain.Range{{From: 50000, To: 50009}},
		Budget:    3,
	}, uctx)
	out, err := New(store, WithRetryBudget(3)).Update(context.Background(), "app", fn)
	if err != nil {
		t.Fatalf("expected commit to settle without error, got %v", err)
	}
	if out.Written || uctx.Updated || !uctx.Available || out.Attempts != 4 {
		t.Fatalf("unexpected outcome %+v ctx=%+v", out, uctx)
	}
}

func TestUpdatePropagatesErrors(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("boom")
	_, err := New(store).Update(context.Background(), "app", func(*domain.Entity, int) (transition.Outcome, error) {
		return transition.Outcome{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transition error, got %v", err)
	}

	store.writeErr = errors.New("disk full")
	_, err = New(store).Update(context.Background(), "app", transition.RemoveAssignment("t", 1))
	if err == nil || errors.Is(err, ErrRetryBudgetExceeded) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestUpdateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(newFakeStore()).Update(ctx, "app", transition.Deauthorize()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestUpdateBackOffStop(t *testing.T) {
	store := newFakeStore()
	store.put("app", domain.NewEntity())
	store.beforeWrite = func(id string) { store.put(id, domain.NewEntity()) }
	m := &alwaysMutate{}
	x := New(store, WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }))
	out, err := x.Update(context.Background(), "app", m.fn)
	if !errors.Is(err, ErrRetryBudgetExceeded) || m.calls != 1 || out.Attempts != 1 {
		t.Fatalf("expected stop after first conflict, got err=%v calls=%d", err, m.calls)
	}
}

func TestExponentialBackOffFactory(t *testing.T) {
	b := ExponentialBackOff(time.Millisecond, 5*time.Millisecond)()
	for i := 0; i < 10; i++ {
		if d := b.NextBackOff(); d <= 0 || d > 10*time.Millisecond {
			t.Fatalf("unexpected delay %v", d)
		}
	}
}

func TestConcurrentCommitsNeverCollide(t *testing.T) {
	store := newFakeStore()
	x := New(store)
	ranges := []domain.Range{{From: 1, To: 1000}}
	const workers = 20

	var wg sync.WaitGroup
	committed := make(chan int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every worker starts from the same stale candidate.
			uctx := transition.NewUpdateContext(1)
			fn := transition.CommitAllocatedID(transition.CommitParams{Type: "table", AppRanges: ranges}, uctx)
			if _, err := x.Update(context.Background(), "app", fn); err != nil {
				t.Errorf("update: %v", err)
				return
			}
			if uctx.Updated {
				committed <- uctx.ID
			}
		}()
	}
	wg.Wait()
	close(committed)

	seen := map[int]bool{}
	for id := range committed {
		if seen[id] {
			t.Fatalf("id %d committed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d commits, got %d", workers, len(seen))
	}
	if got := store.data["app"].Consumptions["table"]; len(got) != workers {
		t.Fatalf("expected %d stored ids, got %v", workers, got)
	}
}
