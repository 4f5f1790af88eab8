package core

import (
	"context"
	"testing"
	"time"

	"idcore/internal/blob"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("IDCORE_RETRY_BUDGET", "")
	t.Setenv("IDCORE_RETRY_BACKOFF", "")
	opts, err := OptionsFromEnv()
	if err != nil || len(opts) != 0 {
		t.Fatalf("expected no options, got %d %v", len(opts), err)
	}

	t.Setenv("IDCORE_RETRY_BUDGET", "12")
	t.Setenv("IDCORE_RETRY_BACKOFF", "2ms")
	opts, err = OptionsFromEnv()
	if err != nil || len(opts) != 2 {
		t.Fatalf("expected two options, got %d %v", len(opts), err)
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.budget != 12 || o.backoff == nil {
		t.Fatalf("unexpected options %+v", o)
	}
	if d := o.backoff().NextBackOff(); d <= 0 || d > 40*time.Millisecond {
		t.Fatalf("unexpected first wait %v", d)
	}

	t.Setenv("IDCORE_RETRY_BACKOFF", "0")
	if opts, err = OptionsFromEnv(); err != nil || len(opts) != 1 {
		t.Fatalf("zero backoff keeps immediate retry: %d %v", len(opts), err)
	}

	for _, tc := range []struct{ budget, wait string }{{"x", ""}, {"-1", ""}, {"", "soon"}, {"", "-5ms"}} {
		t.Setenv("IDCORE_RETRY_BUDGET", tc.budget)
		t.Setenv("IDCORE_RETRY_BACKOFF", tc.wait)
		if _, err := OptionsFromEnv(); err == nil {
			t.Fatalf("expected error for budget=%q backoff=%q", tc.budget, tc.wait)
		}
	}
}

func TestOpenEntityStore(t *testing.T) {
	t.Setenv("IDCORE_STORAGE_DRIVER", "fs")
	t.Setenv("IDCORE_FS_ROOT", t.TempDir())
	store, err := OpenEntityStore(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Blobs().Driver() != blob.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Blobs().Driver())
	}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	res, err := svc.NextID(context.Background(), NextIDRequest{EntityID: "app", Type: "table", Ranges: appRanges, Commit: true})
	if err != nil || res.ID != 50000 {
		t.Fatalf("commit over fs store: %+v %v", res, err)
	}

	t.Setenv("IDCORE_STORAGE_DRIVER", "bogus")
	if _, err := OpenEntityStore(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
