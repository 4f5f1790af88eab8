package upgrade

import (
	"context"
	"slices"
	"testing"

	"idcore/internal/optimistic"
	"idcore/pkg/domain"
)

func TestNormalizeConsumptions(t *testing.T) {
	state := &domain.Entity{Consumptions: map[string][]int{
		"table":    {5, 3, 3, -1, 9},
		"empty":    nil,
		"codeunit": {1},
	}}
	out, err := NormalizeConsumptions(context.Background(), "app", state)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !slices.Equal(out.Consumptions["table"], []int{3, 5, 9}) {
		t.Fatalf("unexpected table ids %v", out.Consumptions["table"])
	}
	if got := out.Consumptions["empty"]; got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil array, got %v", got)
	}
	if !slices.Equal(out.Consumptions["codeunit"], []int{1}) {
		t.Fatalf("unexpected codeunit ids %v", out.Consumptions["codeunit"])
	}
}

func TestPruneInvalidRanges(t *testing.T) {
	original := []domain.Range{{From: 50000, To: 50099}, {From: 10, To: 5}, {From: 0, To: 3}, {From: 60000, To: 60000}}
	state := &domain.Entity{Ranges: original}
	out, err := PruneInvalidRanges(context.Background(), "app", state)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	want := []domain.Range{{From: 50000, To: 50099}, {From: 60000, To: 60000}}
	if !slices.Equal(out.Ranges, want) {
		t.Fatalf("unexpected ranges %v", out.Ranges)
	}
	if len(original) != 4 || original[1] != (domain.Range{From: 10, To: 5}) {
		t.Fatalf("input slice must not be modified: %v", original)
	}

	out, _ = PruneInvalidRanges(context.Background(), "app", &domain.Entity{})
	if out.Ranges != nil {
		t.Fatalf("absent ranges must stay absent")
	}
}

func TestDefaultMigrationsThroughRunner(t *testing.T) {
	store := newMemStore()
	store.seed("app", &domain.Entity{
		Consumptions: map[string][]int{"table": {2, 1, 2}},
		Ranges:       []domain.Range{{From: 5, To: 1}, {From: 1, To: 10}},
	})
	r, err := NewRunner(DefaultMigrations())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	got, err := r.Run(context.Background(), optimistic.New(store), "app", store.data["app"])
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(got.Consumptions["table"], []int{1, 2}) {
		t.Fatalf("unexpected ids %v", got.Consumptions["table"])
	}
	if !slices.Equal(got.Ranges, []domain.Range{{From: 1, To: 10}}) {
		t.Fatalf("unexpected ranges %v", got.Ranges)
	}
	if len(r.Pending(got)) != 0 {
		t.Fatalf("expected nothing pending, got %v", got.UpgradeTags)
	}
}
