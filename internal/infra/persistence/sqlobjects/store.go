// Package sqlobjects implements a blob Store on a single SQL table. Conditional
// writes map to INSERT ... ON CONFLICT DO NOTHING and UPDATE ... WHERE etag,
// so the database arbitrates concurrent writers.
package sqlobjects

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"idcore/internal/blob/core"
)

// Dialect captures the differences between SQL engines.
type Dialect struct {
	Driver core.Driver
	// PayloadType is the column type used for object bodies.
	PayloadType string
	// Numbered switches placeholders from ? to $1, $2, ...
	Numbered bool
}

// Statements used by Store. They are exported so stub drivers can match them.
const (
	CreateTableSQL = `CREATE TABLE IF NOT EXISTS objects (
	key TEXT PRIMARY KEY,
	payload %s NOT NULL,
	etag TEXT NOT NULL,
	content_type TEXT NOT NULL,
	metadata TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`
	SelectSQL = `SELECT payload, etag, content_type, metadata, updated_at FROM objects WHERE key = ?`
	InsertSQL = `INSERT INTO objects (key, payload, etag, content_type, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (key) DO NOTHING`
	UpdateSQL = `UPDATE objects SET payload = ?, etag = ?, content_type = ?, metadata = ?, updated_at = ? WHERE key = ? AND etag = ?`
	DeleteSQL = `DELETE FROM objects WHERE key = ?`
	ListSQL   = `SELECT key, LENGTH(payload), etag, content_type, metadata, updated_at FROM objects WHERE key LIKE ? ESCAPE '\' ORDER BY key`
)

// Store implements core.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newETag func() string
}

// New ensures the objects table exists and returns a store over db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: time.Now, newETag: uuid.NewString}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(CreateTableSQL, dialect.PayloadType)); err != nil {
		return nil, fmt.Errorf("create objects table: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// Put inserts key when opts.IfMatch is empty, otherwise updates it only while
// its etag still equals IfMatch.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	md, err := encodeMetadata(opts.Metadata)
	if err != nil {
		return core.Info{}, err
	}
	etag := s.newETag()
	now := s.now().UTC()
	var res sql.Result
	if opts.IfMatch == "" {
		res, err = s.db.ExecContext(ctx, s.rebind(InsertSQL), key, payload, etag, opts.ContentType, md, now.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, s.rebind(UpdateSQL), payload, etag, opts.ContentType, md, now.UnixNano(), key, opts.IfMatch)
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	if n == 0 {
		return core.Info{}, fmt.Errorf("%w: blob %s", core.ErrPrecondition, key)
	}
	return core.Info{Key: key, Size: int64(len(payload)), ContentType: opts.ContentType, ETag: etag, Metadata: opts.Metadata, LastModified: now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, payload, err := s.get(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	info, _, err := s.get(ctx, key)
	return info, err
}

func (s *Store) get(ctx context.Context, key string) (core.Info, []byte, error) {
	var (
		payload     []byte
		etag, ct    string
		md          string
		updatedNano int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(SelectSQL), key).Scan(&payload, &etag, &ct, &md, &updatedNano)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, nil, fmt.Errorf("%w: blob %s", core.ErrNotFound, key)
	}
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("select %s: %w", key, err)
	}
	meta, err := decodeMetadata(md)
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("decode metadata %s: %w", key, err)
	}
	info := core.Info{Key: key, Size: int64(len(payload)), ContentType: ct, ETag: etag, Metadata: meta, LastModified: time.Unix(0, updatedNano).UTC()}
	return info, payload, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(DeleteSQL), key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(ListSQL), escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var (
			info        core.Info
			md          string
			updatedNano int64
		)
		if err := rows.Scan(&info.Key, &info.Size, &info.ETag, &info.ContentType, &md, &updatedNano); err != nil {
			return nil, fmt.Errorf("scan objects: %w", err)
		}
		if info.Metadata, err = decodeMetadata(md); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", info.Key, err)
		}
		info.LastModified = time.Unix(0, updatedNano).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	// collation order differs between engines
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites ? placeholders into $n form.
func Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func encodeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, err
	}
	return md, nil
}
