package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"idcore/internal/blob"
	"idcore/pkg/domain"
)

const (
	entityPrefix      = "apps/"
	entitySuffix      = ".json"
	entityContentType = "application/json"
)

// EntityKey returns the blob key an entity is stored under.
func EntityKey(id string) string { return entityPrefix + id + entitySuffix }

// BlobEntityStore persists entities as JSON objects in a blob store. The
// object ETag is the entity version.
type BlobEntityStore struct {
	blobs blob.Store
}

var _ domain.EntityStore = (*BlobEntityStore)(nil)

// NewEntityStore wraps blobs.
func NewEntityStore(blobs blob.Store) *BlobEntityStore {
	return &BlobEntityStore{blobs: blobs}
}

// Blobs returns the underlying blob store.
func (s *BlobEntityStore) Blobs() blob.Store { return s.blobs }

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidEntityID, id)
	}
	return nil
}

// Read decodes the entity stored under id.
func (s *BlobEntityStore) Read(ctx context.Context, id string) (*domain.Entity, domain.Version, error) {
	if err := validateID(id); err != nil {
		return nil, "", err
	}
	info, body, err := s.blobs.Get(ctx, EntityKey(id))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = body.Close() }()
	e := domain.NewEntity()
	if err := json.NewDecoder(body).Decode(e); err != nil {
		return nil, "", fmt.Errorf("decode entity %s: %w", id, err)
	}
	return e, domain.Version(info.ETag), nil
}

// Write stores e under id when the stored ETag still equals expected.
func (s *BlobEntityStore) Write(ctx context.Context, id string, e *domain.Entity, expected domain.Version) (domain.Version, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode entity %s: %w", id, err)
	}
	info, err := s.blobs.Put(ctx, EntityKey(id), bytes.NewReader(payload), blob.PutOptions{
		ContentType: entityContentType,
		IfMatch:     string(expected),
	})
	if errors.Is(err, blob.ErrPrecondition) {
		return "", fmt.Errorf("%w: %s", domain.ErrVersionConflict, id)
	}
	if err != nil {
		return "", err
	}
	return domain.Version(info.ETag), nil
}

// List returns the ids of all stored entities in key order.
func (s *BlobEntityStore) List(ctx context.Context) ([]string, error) {
	infos, err := s.blobs.List(ctx, entityPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, entityPrefix)
		id, ok := strings.CutSuffix(name, entitySuffix)
		if !ok || validateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
