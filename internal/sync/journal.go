package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/internal/query"
	"github.com/bradmartin/ksync/internal/storage"
	"github.com/bradmartin/ksync/internal/store"
	"github.com/bradmartin/ksync/pkg/log"
	"github.com/rs/zerolog"
)

// counterDocID is the storage id of the persisted sequence counter
// inside the client-scoped system table.
const counterDocID = "syncKey"

// Journal is the durable, append-only log of pending mutations. It
// exclusively owns its reserved table; the push engine reaches it only
// through Drain/Reinstate.
type Journal struct {
	table  *store.Store
	system *store.Store
	logger zerolog.Logger

	mu            stdsync.Mutex
	counter       uint64
	counterLoaded bool
}

// NewJournal binds the journal to its reserved table and the
// client-scoped system table that persists the sequence counter.
func NewJournal(adapter storage.Adapter, cfg config.Config) *Journal {
	return &Journal{
		table:  store.NewReserved(adapter, cfg.SyncTable),
		system: store.NewReserved(adapter, "__sync_"+cfg.InstanceID),
		logger: log.WithComponent("journal"),
	}
}

// nextKey returns the next sequence value and persists the advanced
// counter. The mutex serializes the read-modify-write; keys are
// strictly increasing and never reused for the lifetime of the
// persisted counter.
func (j *Journal) nextKey(ctx context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.counterLoaded {
		doc, err := j.system.FindByID(ctx, counterDocID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("load sync counter: %w", err)
		}
		if doc != nil {
			if v, ok := doc["value"].(float64); ok && v >= 0 {
				j.counter = uint64(v)
			}
		}
		j.counterLoaded = true
	}

	key := j.counter
	j.counter++
	_, err := j.system.Save(ctx, entity.Entity{
		entity.IDAttribute: counterDocID,
		"value":            float64(j.counter),
	})
	if err != nil {
		// Roll back the in-memory advance so the key is not burned
		// without being durable.
		j.counter = key
		return 0, fmt.Errorf("persist sync counter: %w", err)
	}
	return key, nil
}

// Enqueue appends one pending mutation. The entity is snapshotted, so
// later caller mutations do not bleed into the journal.
func (j *Journal) Enqueue(ctx context.Context, collection string, method Method, ent entity.Entity) (Record, error) {
	if collection == "" {
		return Record{}, ErrMissingCollection
	}
	if ent.ID() == "" {
		return Record{}, fmt.Errorf("enqueue %s on %s: %w", method, collection, ErrMissingEntityID)
	}

	key, err := j.nextKey(ctx)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Key:        key,
		EntityID:   ent.ID(),
		Collection: collection,
		Method:     method,
		Entity:     ent.Clone(),
	}
	if _, err := j.table.Save(ctx, rec.toDoc()); err != nil {
		return Record{}, fmt.Errorf("persist sync record %d: %w", key, err)
	}
	j.logger.Debug().Uint64("key", key).Str("collection", collection).
		Str("method", string(method)).Str("entity_id", rec.EntityID).Msg("enqueued")
	return rec, nil
}

// find reads the records matching the query without removing them.
// Journal documents that fail to decode are skipped with a warning;
// they cannot be pushed and should not poison reads.
func (j *Journal) find(ctx context.Context, q *query.Query) ([]Record, error) {
	docs, err := j.table.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := recordFromDoc(doc)
		if err != nil {
			j.logger.Warn().Err(err).Msg("skipping undecodable sync record")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Drain removes the matching records from the journal and returns them.
// The claim is single-phase: once a record is drained, only Reinstate
// puts it back. Records are removed one adapter call at a time, so the
// claim as a whole is not a single atomic operation.
func (j *Journal) Drain(ctx context.Context, q *query.Query) ([]Record, error) {
	recs, err := j.find(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := j.table.RemoveByID(ctx, recordID(rec.Key)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("claim sync record %d: %w", rec.Key, err)
		}
	}
	return recs, nil
}

// Reinstate writes records back into the journal in a single adapter
// call, preserving their original keys.
func (j *Journal) Reinstate(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]entity.Entity, len(recs))
	for i, rec := range recs {
		docs[i] = rec.toDoc()
	}
	if _, err := j.table.Save(ctx, docs...); err != nil {
		return fmt.Errorf("reinstate %d sync records: %w", len(recs), err)
	}
	return nil
}

// Count returns the number of distinct entities with pending mutations,
// i.e. the size of the coalesced result set.
func (j *Journal) Count(ctx context.Context, q *query.Query) (int, error) {
	recs, err := j.find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(Coalesce(recs)), nil
}

// Clear drops the matching records. A nil query empties the journal.
func (j *Journal) Clear(ctx context.Context, q *query.Query) error {
	if q == nil {
		return j.table.Clear(ctx)
	}
	if _, err := j.table.Clean(ctx, q); err != nil {
		return fmt.Errorf("clear sync records: %w", err)
	}
	return nil
}
