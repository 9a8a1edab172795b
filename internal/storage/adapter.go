// Package storage provides the pluggable key/value document store used
// by the local data collections and the sync journal. One Adapter
// instance serves one logical database; tables are created lazily on
// first write and hold opaque JSON documents keyed by their id
// attribute.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
)

// Common errors
var (
	ErrNotFound  = errors.New("document not found")
	ErrMissingID = errors.New("document missing id")
	ErrNoBackend = errors.New("no storage backend available")
	ErrClosed    = errors.New("storage adapter closed")
)

// systemTablePrefix marks reserved tables (counters, instance state)
// that survive ClearAll.
const systemTablePrefix = "__"

// IsSystemTable reports whether a table is reserved engine state.
func IsSystemTable(table string) bool {
	return len(table) >= len(systemTablePrefix) && table[:len(systemTablePrefix)] == systemTablePrefix
}

// Adapter is the uniform surface every backend implements.
//
// Save is atomic per call: a multi-document save either lands entirely
// or not at all. Reads against a table that was never written behave as
// reads of an empty table: Find returns no documents and FindByID
// returns ErrNotFound, never any other error.
type Adapter interface {
	// Find returns every document in the table, in undefined order.
	Find(ctx context.Context, table string) ([]entity.Entity, error)

	// FindByID returns one document, or ErrNotFound.
	FindByID(ctx context.Context, table, id string) (entity.Entity, error)

	// Save upserts the documents by id and returns them. Every document
	// must already carry an id; ErrMissingID otherwise.
	Save(ctx context.Context, table string, docs []entity.Entity) ([]entity.Entity, error)

	// RemoveByID deletes one document, or returns ErrNotFound.
	RemoveByID(ctx context.Context, table, id string) error

	// Clear drops the table and everything in it.
	Clear(ctx context.Context, table string) error

	// ClearAll drops every user table. System tables survive.
	ClearAll(ctx context.Context) error

	// Name identifies the bound backend ("badger", "sqlite", "bolt").
	Name() string

	// Close releases the backend.
	Close() error
}

// Options configures adapter construction.
type Options struct {
	// DataDir is the directory backends keep their files under. Each
	// database gets its own subdirectory.
	DataDir string

	// Preference is the ordered backend probe list; empty means the
	// configured default order.
	Preference []string
}

// Open validates the database name, probes the preference list in
// order, and binds the first backend that reports itself available.
// A probe that passes but fails to open is fatal, not skipped.
func Open(databaseName string, opts Options) (Adapter, error) {
	if err := config.ValidateName(databaseName); err != nil {
		return nil, err
	}
	prefs := opts.Preference
	if len(prefs) == 0 {
		prefs = []string{config.BackendBadger, config.BackendSQLite, config.BackendBolt}
	}
	dir := filepath.Join(opts.DataDir, databaseName)

	for _, name := range prefs {
		switch name {
		case config.BackendBadger:
			if !dirWritable(dir) {
				continue
			}
			return newBadgerAdapter(dir)
		case config.BackendSQLite:
			if !dirWritable(dir) {
				continue
			}
			return newSQLiteAdapter(dir)
		case config.BackendBolt:
			if !dirWritable(dir) {
				continue
			}
			return newBoltAdapter(dir)
		default:
			return nil, fmt.Errorf("unknown storage backend %q", name)
		}
	}
	return nil, fmt.Errorf("%w: tried %v", ErrNoBackend, prefs)
}

// dirWritable is the capability probe shared by the file-backed
// backends: the data directory must be creatable and writable.
func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// requireIDs checks that every document carries an id before a batch
// write begins, so a multi-document save never partially applies.
func requireIDs(docs []entity.Entity) error {
	for i, doc := range docs {
		if doc.ID() == "" {
			return fmt.Errorf("%w: document %d", ErrMissingID, i)
		}
	}
	return nil
}
