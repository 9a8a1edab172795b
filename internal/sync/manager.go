package sync

import (
	"context"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/internal/query"
	"github.com/bradmartin/ksync/internal/remote"
	"github.com/bradmartin/ksync/internal/storage"
)

// Manager is the public surface of the sync engine:
// count, enqueue create/update, enqueue delete, push, clear.
type Manager struct {
	journal *Journal
	engine  *Engine
	cfg     config.Config
}

// NewManager wires the journal and push engine over an opened adapter
// and a remote client. The configured attribute names take effect for
// the whole process.
func NewManager(adapter storage.Adapter, client *remote.Client, cfg config.Config) *Manager {
	cfg.Normalize()
	entity.IDAttribute = cfg.IDAttribute
	entity.KMDAttribute = cfg.KMDAttribute

	journal := NewJournal(adapter, cfg)
	return &Manager{
		journal: journal,
		engine:  NewEngine(journal, adapter, client, cfg),
		cfg:     cfg,
	}
}

// Count returns the number of distinct entities with pending mutations
// matching the query.
func (m *Manager) Count(ctx context.Context, q *query.Query) (int, error) {
	return m.journal.Count(ctx, q)
}

// EnqueueCreateOrUpdate journals pending writes for the given entities
// and returns them unchanged. Every entity must already carry an id;
// the collection name must be valid.
func (m *Manager) EnqueueCreateOrUpdate(ctx context.Context, collection string, entities ...entity.Entity) ([]entity.Entity, error) {
	return m.enqueue(ctx, collection, MethodCreateOrUpdate, entities)
}

// EnqueueDelete journals pending deletes for the given entities and
// returns them unchanged.
func (m *Manager) EnqueueDelete(ctx context.Context, collection string, entities ...entity.Entity) ([]entity.Entity, error) {
	return m.enqueue(ctx, collection, MethodDelete, entities)
}

func (m *Manager) enqueue(ctx context.Context, collection string, method Method, entities []entity.Entity) ([]entity.Entity, error) {
	if err := config.ValidateName(collection); err != nil {
		return nil, err
	}
	for _, ent := range entities {
		if _, err := m.journal.Enqueue(ctx, collection, method, ent); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// Push drains the matching journal records against the remote. See
// Engine.Push for the pipeline semantics.
func (m *Manager) Push(ctx context.Context, q *query.Query) ([]Result, error) {
	return m.engine.Push(ctx, q)
}

// Clear drops the matching journal records without pushing them.
func (m *Manager) Clear(ctx context.Context, q *query.Query) error {
	return m.journal.Clear(ctx, q)
}
