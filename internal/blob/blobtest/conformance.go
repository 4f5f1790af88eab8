// Package blobtest provides a conformance suite shared by every blob backend.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"idcore/internal/blob/core"
)

// Run exercises the conditional-write contract of core.Store against stores
// produced by newStore. Each subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()
	t.Run("create-only", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		info := put(t, s, "apps/a.json", "v1", "")
		if info.ETag == "" {
			t.Fatalf("expected etag on create")
		}
		_, err := s.Put(ctx, "apps/a.json", bytes.NewReader([]byte("v2")), core.PutOptions{})
		if !errors.Is(err, core.ErrPrecondition) {
			t.Fatalf("expected precondition failure on duplicate create, got %v", err)
		}
		if got := read(t, s, "apps/a.json"); got != "v1" {
			t.Fatalf("losing create must not overwrite, got %q", got)
		}
	})

	t.Run("conditional-update", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		first := put(t, s, "apps/a.json", "v1", "")
		second := put(t, s, "apps/a.json", "v2", first.ETag)
		if second.ETag == first.ETag {
			t.Fatalf("expected a new etag after update")
		}
		_, err := s.Put(ctx, "apps/a.json", bytes.NewReader([]byte("v3")), core.PutOptions{IfMatch: first.ETag})
		if !errors.Is(err, core.ErrPrecondition) {
			t.Fatalf("expected precondition failure on stale etag, got %v", err)
		}
		if got := read(t, s, "apps/a.json"); got != "v2" {
			t.Fatalf("unexpected content %q", got)
		}
		head, err := s.Head(ctx, "apps/a.json")
		if err != nil || head.ETag != second.ETag {
			t.Fatalf("head etag %q err %v, want %q", head.ETag, err, second.ETag)
		}
	})

	t.Run("if-match-missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(context.Background(), "apps/ghost.json", bytes.NewReader([]byte("x")), core.PutOptions{IfMatch: "nope"})
		if !errors.Is(err, core.ErrPrecondition) {
			t.Fatalf("expected precondition failure, got %v", err)
		}
	})

	t.Run("not-found", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		if _, _, err := s.Get(ctx, "apps/missing.json"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found on get, got %v", err)
		}
		if _, err := s.Head(ctx, "apps/missing.json"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found on head, got %v", err)
		}
	})

	t.Run("list-delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		put(t, s, "apps/b.json", "b", "")
		put(t, s, "apps/a.json", "a", "")
		put(t, s, "other/c.json", "c", "")
		list, err := s.List(ctx, "apps/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].Key != "apps/a.json" || list[1].Key != "apps/b.json" {
			t.Fatalf("unexpected list %+v", list)
		}
		ok, err := s.Delete(ctx, "apps/a.json")
		if err != nil || !ok {
			t.Fatalf("delete: ok=%v err=%v", ok, err)
		}
		if _, err := s.Head(ctx, "apps/a.json"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected deleted key to be gone, got %v", err)
		}
		put(t, s, "apps/a.json", "again", "")
	})
}

func put(t *testing.T, s core.Store, key, body, ifMatch string) core.Info {
	t.Helper()
	info, err := s.Put(context.Background(), key, bytes.NewReader([]byte(body)), core.PutOptions{ContentType: "application/json", IfMatch: ifMatch})
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return info
}

func read(t *testing.T, s core.Store, key string) string {
	t.Helper()
	_, rc, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(b)
}
