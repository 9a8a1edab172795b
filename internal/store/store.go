// Package store is the typed CRUD layer over one collection: it bridges
// the richer query descriptor down to the adapter's whole-table reads,
// assigns device-local ids on save, and offers read-modify-write under
// the adapter's per-call atomicity.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/internal/query"
	"github.com/bradmartin/ksync/internal/storage"
)

// Store provides collection-scoped access over a storage adapter.
type Store struct {
	adapter    storage.Adapter
	collection string
}

// New validates the collection name and binds a store to it.
func New(adapter storage.Adapter, collection string) (*Store, error) {
	if err := config.ValidateName(collection); err != nil {
		return nil, err
	}
	return &Store{adapter: adapter, collection: collection}, nil
}

// NewReserved binds a store to a reserved engine table without name
// validation (the sync journal table name is config-supplied and may
// contain underscores).
func NewReserved(adapter storage.Adapter, table string) *Store {
	return &Store{adapter: adapter, collection: table}
}

// Collection returns the bound collection name.
func (s *Store) Collection() string { return s.collection }

// Save upserts the documents, assigning a device-local id (and the
// local metadata marker) to any document that lacks one. The input
// slice is returned with ids filled in.
func (s *Store) Save(ctx context.Context, docs ...entity.Entity) ([]entity.Entity, error) {
	for _, doc := range docs {
		if doc.ID() != "" {
			continue
		}
		id, err := entity.GenerateID()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		doc.SetID(id)
		kmd, _ := doc[entity.KMDAttribute].(map[string]any)
		if kmd == nil {
			kmd = map[string]any{}
		}
		kmd["local"] = true
		doc[entity.KMDAttribute] = kmd
	}
	return s.adapter.Save(ctx, s.collection, docs)
}

// FindByID returns one document, or storage.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (entity.Entity, error) {
	return s.adapter.FindByID(ctx, s.collection, id)
}

// Find returns the documents matching the query. A nil query returns
// the whole collection.
func (s *Store) Find(ctx context.Context, q *query.Query) ([]entity.Entity, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

// Count returns the number of filter matches. Sort, skip and limit are
// ignored.
func (s *Store) Count(ctx context.Context, q *query.Query) (int, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	if q == nil {
		return len(docs), nil
	}
	return q.CountMatches(docs), nil
}

// Group evaluates an aggregation client-side.
func (s *Store) Group(ctx context.Context, agg query.Aggregation) ([]entity.Entity, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	return agg.Run(docs)
}

// FindAndModify reads the document, applies fn to a copy, and saves the
// result in a single adapter write. fn receives nil when the document
// is absent; returning nil skips the write.
func (s *Store) FindAndModify(ctx context.Context, id string, fn func(entity.Entity) entity.Entity) (entity.Entity, error) {
	doc, err := s.adapter.FindByID(ctx, s.collection, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	modified := fn(doc.Clone())
	if modified == nil {
		return doc, nil
	}
	if modified.ID() == "" {
		modified.SetID(id)
	}
	saved, err := s.adapter.Save(ctx, s.collection, []entity.Entity{modified})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}

// RemoveByID deletes one document, or returns storage.ErrNotFound.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	return s.adapter.RemoveByID(ctx, s.collection, id)
}

// Clean bulk-deletes every filter match and returns how many documents
// were removed.
func (s *Store) Clean(ctx context.Context, q *query.Query) (int, error) {
	docs, err := s.adapter.Find(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if q != nil && !q.Matches(doc) {
			continue
		}
		if err := s.adapter.RemoveByID(ctx, s.collection, doc.ID()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear drops the whole collection.
func (s *Store) Clear(ctx context.Context) error {
	return s.adapter.Clear(ctx, s.collection)
}
