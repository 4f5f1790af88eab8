package sqlite

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"idcore/internal/blob/blobtest"
	"idcore/internal/blob/core"
)

func TestStoreConformance(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store {
		store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "objects.db"))
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "objects.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	info, err := store.Put(ctx, "apps/a.json", bytes.NewReader([]byte(`{"table":[1]}`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, rc, err := reopened.Get(ctx, "apps/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != `{"table":[1]}` || got.ETag != info.ETag || got.Metadata["k"] != "v" || got.ContentType != "application/json" {
		t.Fatalf("unexpected reopened object %+v %s", got, body)
	}
	if reopened.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected driver %s", reopened.Driver())
	}
}

func TestStoreListEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, k := range []string{"a_1", "ab1", "a%2"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "a_")
	if err != nil || len(list) != 1 || list[0].Key != "a_1" {
		t.Fatalf("expected literal underscore match, got %+v err %v", list, err)
	}
	if list[0].Size != 1 {
		t.Fatalf("unexpected size %d", list[0].Size)
	}
}

func TestStoreConcurrentConditionalWrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	base, err := store.Put(ctx, "k", bytes.NewReader([]byte("0")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("1")), core.PutOptions{IfMatch: base.ETag}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}
