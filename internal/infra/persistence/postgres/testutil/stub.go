// Package testutil provides a stub database that understands the objects table
// statements issued by the postgres store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"idcore/internal/infra/persistence/sqlobjects"
)

// Row is one stored object.
type Row struct {
	Key         string
	Payload     []byte
	ETag        string
	ContentType string
	Metadata    string
	UpdatedAt   int64
}

// StubConn records statements and keeps objects rows in memory.
type StubConn struct {
	mu        sync.Mutex
	Execs     []string
	Rows      map[string]Row
	FailExec  bool
	FailPing  bool
	FailQuery bool
	RowsErr   error
	// BeforeUpdate runs ahead of a conditional UPDATE and may mutate Rows to
	// simulate a concurrent writer. It is called without the lock held.
	BeforeUpdate func(key string)
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]Row)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Put stores a row directly, as another writer would.
func (c *StubConn) Put(r Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rows[r.Key] = r
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("transactions not supported") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

var (
	insertSQL = sqlobjects.Rebind(sqlobjects.InsertSQL)
	updateSQL = sqlobjects.Rebind(sqlobjects.UpdateSQL)
	deleteSQL = sqlobjects.Rebind(sqlobjects.DeleteSQL)
	selectSQL = sqlobjects.Rebind(sqlobjects.SelectSQL)
	listSQL   = sqlobjects.Rebind(sqlobjects.ListSQL)
)

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if query == updateSQL && c.BeforeUpdate != nil {
		c.BeforeUpdate(str(args[5]))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	switch {
	case strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case query == insertSQL:
		key := str(args[0])
		if _, exists := c.Rows[key]; exists {
			return driver.RowsAffected(0), nil
		}
		c.Rows[key] = Row{Key: key, Payload: bytesOf(args[1]), ETag: str(args[2]), ContentType: str(args[3]), Metadata: str(args[4]), UpdatedAt: i64(args[5])}
		return driver.RowsAffected(1), nil
	case query == updateSQL:
		key := str(args[5])
		existing, ok := c.Rows[key]
		if !ok || existing.ETag != str(args[6]) {
			return driver.RowsAffected(0), nil
		}
		c.Rows[key] = Row{Key: key, Payload: bytesOf(args[0]), ETag: str(args[1]), ContentType: str(args[2]), Metadata: str(args[3]), UpdatedAt: i64(args[4])}
		return driver.RowsAffected(1), nil
	case query == deleteSQL:
		key := str(args[0])
		if _, ok := c.Rows[key]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, key)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	switch query {
	case selectSQL:
		out := &stubRows{cols: []string{"payload", "etag", "content_type", "metadata", "updated_at"}, err: c.RowsErr}
		if r, ok := c.Rows[str(args[0])]; ok {
			out.rows = append(out.rows, []driver.Value{r.Payload, r.ETag, r.ContentType, r.Metadata, r.UpdatedAt})
		}
		return out, nil
	case listSQL:
		prefix := unescapeLike(strings.TrimSuffix(str(args[0]), "%"))
		keys := make([]string, 0, len(c.Rows))
		for k := range c.Rows {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		out := &stubRows{cols: []string{"key", "length", "etag", "content_type", "metadata", "updated_at"}, err: c.RowsErr}
		for _, k := range keys {
			r := c.Rows[k]
			out.rows = append(out.rows, []driver.Value{r.Key, int64(len(r.Payload)), r.ETag, r.ContentType, r.Metadata, r.UpdatedAt})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func str(v driver.NamedValue) string {
	s, _ := v.Value.(string)
	return s
}

func i64(v driver.NamedValue) int64 {
	n, _ := v.Value.(int64)
	return n
}

func bytesOf(v driver.NamedValue) []byte {
	b, _ := v.Value.([]byte)
	return append([]byte(nil), b...)
}

func unescapeLike(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
