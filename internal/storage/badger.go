package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/pkg/log"
)

// badgerAdapter implements Adapter on BadgerDB, the structured object
// store backend.
type badgerAdapter struct {
	db *badger.DB
}

// ==================== Key Naming Scheme ====================
// Documents live under "doc:<table>:<id>". Collection names cannot
// contain ':' (validated upstream); reserved table names come from
// configuration unchecked, so the prefix scan is unambiguous only while
// they contain no ':'.

func badgerDocKey(table, id string) []byte {
	return []byte(fmt.Sprintf("doc:%s:%s", table, id))
}

func badgerTablePrefix(table string) []byte {
	return []byte(fmt.Sprintf("doc:%s:", table))
}

func newBadgerAdapter(dir string) (Adapter, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	log.WithComponent("storage").Debug().Str("backend", "badger").Str("dir", dir).Msg("adapter bound")
	return &badgerAdapter{db: db}, nil
}

func (a *badgerAdapter) Name() string { return "badger" }

func (a *badgerAdapter) Close() error { return a.db.Close() }

func (a *badgerAdapter) Find(ctx context.Context, table string) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []entity.Entity
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := badgerTablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var doc entity.Entity
				if err := json.Unmarshal(val, &doc); err != nil {
					return fmt.Errorf("decode document %s: %w", it.Item().Key(), err)
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger find %s: %w", table, err)
	}
	return docs, nil
}

func (a *badgerAdapter) FindByID(ctx context.Context, table, id string) (entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc entity.Entity
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerDocKey(table, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s/%s: %w", table, id, err)
	}
	return doc, nil
}

func (a *badgerAdapter) Save(ctx context.Context, table string, docs []entity.Entity) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := requireIDs(docs); err != nil {
		return nil, err
	}
	err := a.db.Update(func(txn *badger.Txn) error {
		for _, doc := range docs {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document %s: %w", doc.ID(), err)
			}
			if err := txn.Set(badgerDocKey(table, doc.ID()), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger save %s: %w", table, err)
	}
	return docs, nil
}

func (a *badgerAdapter) RemoveByID(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(txn *badger.Txn) error {
		key := badgerDocKey(table, id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("badger remove %s/%s: %w", table, id, err)
	}
	return nil
}

func (a *badgerAdapter) Clear(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.db.DropPrefix(badgerTablePrefix(table)); err != nil {
		return fmt.Errorf("badger clear %s: %w", table, err)
	}
	return nil
}

func (a *badgerAdapter) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tables, err := a.userTables()
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := a.db.DropPrefix(badgerTablePrefix(table)); err != nil {
			return fmt.Errorf("badger clear %s: %w", table, err)
		}
	}
	return nil
}

// userTables scans key prefixes and returns the distinct non-system
// table names present in the store.
func (a *badgerAdapter) userTables() ([]string, error) {
	seen := make(map[string]bool)
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte("doc:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, "doc:")
			idx := strings.IndexByte(rest, ':')
			if idx < 0 {
				continue
			}
			table := rest[:idx]
			if !IsSystemTable(table) {
				seen[table] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan tables: %w", err)
	}
	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	return tables, nil
}
