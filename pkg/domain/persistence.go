package domain

import (
	"context"
	"errors"
)

// Version is an opaque token identifying one stored revision of an entity.
// The empty version means "does not exist yet".
type Version string

var (
	// ErrNotFound is returned by Read when no entity is stored under the id.
	ErrNotFound = errors.New("entity not found")
	// ErrVersionConflict is returned by Write when the stored version no
	// longer matches the expected one.
	ErrVersionConflict = errors.New("entity version conflict")
)

// EntityStore is the versioned object store contract: a versioned read and a
// conditional write that fails with ErrVersionConflict when the version moved
// since the paired read. There is no atomic read-modify-write.
type EntityStore interface {
	Read(ctx context.Context, id string) (*Entity, Version, error)
	// Write stores e under id when the current version equals expected. An
	// empty expected version only succeeds when nothing is stored yet.
	Write(ctx context.Context, id string, e *Entity, expected Version) (Version, error)
}
