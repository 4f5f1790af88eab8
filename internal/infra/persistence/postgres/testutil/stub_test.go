package testutil

import (
	"context"
	"database/sql/driver"
	"testing"

	"idcore/internal/infra/persistence/sqlobjects"
)

func TestStubConnConditionalStatements(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	insert := sqlobjects.Rebind(sqlobjects.InsertSQL)
	args := []driver.NamedValue{{Value: "k"}, {Value: []byte("v")}, {Value: "e1"}, {Value: ""}, {Value: "{}"}, {Value: int64(1)}}
	res, err := conn.ExecContext(ctx, insert, args)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected insert to affect 1 row, got %d", n)
	}
	res, _ = conn.ExecContext(ctx, insert, args)
	if n, _ := res.RowsAffected(); n != 0 {
		t.Fatalf("expected duplicate insert to affect 0 rows, got %d", n)
	}

	update := sqlobjects.Rebind(sqlobjects.UpdateSQL)
	upd := []driver.NamedValue{{Value: []byte("v2")}, {Value: "e2"}, {Value: ""}, {Value: "{}"}, {Value: int64(2)}, {Value: "k"}, {Value: "stale"}}
	res, _ = conn.ExecContext(ctx, update, upd)
	if n, _ := res.RowsAffected(); n != 0 {
		t.Fatalf("expected stale update to affect 0 rows, got %d", n)
	}
	upd[6] = driver.NamedValue{Value: "e1"}
	res, _ = conn.ExecContext(ctx, update, upd)
	if n, _ := res.RowsAffected(); n != 1 || conn.Rows["k"].ETag != "e2" {
		t.Fatalf("expected update to apply, got %d %+v", n, conn.Rows["k"])
	}

	rows, err := conn.QueryContext(ctx, sqlobjects.Rebind(sqlobjects.ListSQL), []driver.NamedValue{{Value: "k%"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	dest := make([]driver.Value, 6)
	if err := rows.Next(dest); err != nil || dest[0] != "k" || dest[1] != int64(2) {
		t.Fatalf("unexpected list row %v err %v", dest, err)
	}
	if _, err := conn.ExecContext(ctx, "DROP TABLE objects", nil); err == nil {
		t.Fatalf("expected unknown statement error")
	}
}

func TestUnescapeLike(t *testing.T) {
	if got := unescapeLike(`a\_b\%c\\`); got != `a_b%c\` {
		t.Fatalf("unexpected unescape %q", got)
	}
}
