package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/pkg/log"
)

// boltAdapter implements Adapter on bbolt, the string-value dictionary
// backend. Each table maps to a bucket of JSON strings keyed by id.
type boltAdapter struct {
	db *bolt.DB
}

func newBoltAdapter(dir string) (Adapter, error) {
	dbPath := filepath.Join(dir, "ksync.bolt")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	log.WithComponent("storage").Debug().Str("backend", "bolt").Str("path", dbPath).Msg("adapter bound")
	return &boltAdapter{db: db}, nil
}

func (a *boltAdapter) Name() string { return "bolt" }

func (a *boltAdapter) Close() error { return a.db.Close() }

func (a *boltAdapter) Find(ctx context.Context, table string) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []entity.Entity
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var doc entity.Entity
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt find %s: %w", table, err)
	}
	return docs, nil
}

func (a *boltAdapter) FindByID(ctx context.Context, table, id string) (entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc entity.Entity
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &doc)
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bolt get %s/%s: %w", table, id, err)
	}
	return doc, nil
}

func (a *boltAdapter) Save(ctx context.Context, table string, docs []entity.Entity) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := requireIDs(docs); err != nil {
		return nil, err
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", table, err)
		}
		for _, doc := range docs {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document %s: %w", doc.ID(), err)
			}
			if err := b.Put([]byte(doc.ID()), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt save %s: %w", table, err)
	}
	return docs, nil
}

func (a *boltAdapter) RemoveByID(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil || b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err == ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("bolt remove %s/%s: %w", table, id, err)
	}
	return nil
}

func (a *boltAdapter) Clear(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(table))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("bolt clear %s: %w", table, err)
	}
	return nil
}

func (a *boltAdapter) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		var drop [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if !IsSystemTable(string(name)) {
				drop = append(drop, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range drop {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt clear all: %w", err)
	}
	return nil
}
