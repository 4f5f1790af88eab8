package core

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"idcore/internal/blob"
	"idcore/pkg/domain"
)

func putRaw(t *testing.T, blobs blob.Store, key, body string) {
	t.Helper()
	if _, err := blobs.Put(context.Background(), key, bytes.NewReader([]byte(body)), blob.PutOptions{}); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func TestBlobEntityStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore(blob.NewMemory())

	if _, _, err := store.Read(ctx, "app"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	e := domain.NewEntity()
	e.Consumptions["table"] = []int{50000, 50001}
	e.Ranges = []domain.Range{{From: 50000, To: 50100}}
	v1, err := store.Write(ctx, "app", e, "")
	if err != nil || v1 == "" {
		t.Fatalf("create: %v %q", err, v1)
	}
	if _, err := store.Write(ctx, "app", e, ""); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("second create must conflict, got %v", err)
	}

	got, v, err := store.Read(ctx, "app")
	if err != nil || v != v1 {
		t.Fatalf("read: %v version %q want %q", err, v, v1)
	}
	if !slices.Equal(got.Consumed("table"), []int{50000, 50001}) || len(got.Ranges) != 1 {
		t.Fatalf("unexpected entity %+v", got)
	}

	v2, err := store.Write(ctx, "app", got, v1)
	if err != nil || v2 == v1 {
		t.Fatalf("update: %v %q", err, v2)
	}
	if _, err := store.Write(ctx, "app", got, v1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale write must conflict, got %v", err)
	}

	info, err := store.Blobs().Head(ctx, EntityKey("app"))
	if err != nil || info.ContentType != "application/json" {
		t.Fatalf("unexpected head %+v %v", info, err)
	}
}

func TestBlobEntityStore_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore(blob.NewMemory())
	for _, id := range []string{"", "a/b", `a\b`, ".."} {
		if _, _, err := store.Read(ctx, id); !errors.Is(err, ErrInvalidEntityID) {
			t.Fatalf("read %q: expected invalid id, got %v", id, err)
		}
		if _, err := store.Write(ctx, id, domain.NewEntity(), ""); !errors.Is(err, ErrInvalidEntityID) {
			t.Fatalf("write %q: expected invalid id, got %v", id, err)
		}
	}
}

func TestBlobEntityStore_DecodeError(t *testing.T) {
	blobs := blob.NewMemory()
	putRaw(t, blobs, EntityKey("bad"), "not json")
	putRaw(t, blobs, EntityKey("wrongtype"), `{"table":"x"}`)
	store := NewEntityStore(blobs)
	for _, id := range []string{"bad", "wrongtype"} {
		_, _, err := store.Read(context.Background(), id)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s: expected decode error, got %v", id, err)
		}
	}
}

func TestBlobEntityStore_WriteRejectsReservedConsumptionKey(t *testing.T) {
	store := NewEntityStore(blob.NewMemory())
	e := domain.NewEntity()
	e.Consumptions[domain.KeyRanges] = []int{1}
	if _, err := store.Write(context.Background(), "app", e, ""); err == nil {
		t.Fatalf("expected encode error for reserved key")
	}
}

func TestBlobEntityStore_List(t *testing.T) {
	blobs := blob.NewMemory()
	putRaw(t, blobs, EntityKey("b"), "{}")
	putRaw(t, blobs, EntityKey("a"), "{}")
	putRaw(t, blobs, "apps/readme.txt", "x")
	putRaw(t, blobs, "other/c.json", "{}")
	ids, err := NewEntityStore(blobs).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(ids, []string{"a", "b"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}
