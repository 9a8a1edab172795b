package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/pkg/log"
)

// sqliteAdapter implements Adapter on SQLite, the SQL-over-local-files
// backend. Each table maps to a real SQL table holding (id, body) rows.
type sqliteAdapter struct {
	db *sql.DB
}

const sqliteTablePrefix = "doc_"

// sqlTableName maps a logical table to its SQL identifier. The result
// is always used inside double quotes.
func sqlTableName(table string) string {
	return sqliteTablePrefix + table
}

func newSQLiteAdapter(dir string) (Adapter, error) {
	dbPath := filepath.Join(dir, "ksync.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Pin to a single connection — SQLite only supports one writer, and
	// this keeps the pool from opening extra connections that could
	// corrupt the WAL/SHM files under concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db.Exec("PRAGMA synchronous=NORMAL")

	log.WithComponent("storage").Debug().Str("backend", "sqlite").Str("path", dbPath).Msg("adapter bound")
	return &sqliteAdapter{db: db}, nil
}

func (a *sqliteAdapter) Name() string { return "sqlite" }

func (a *sqliteAdapter) Close() error { return a.db.Close() }

// tableExists consults sqlite_master so reads against never-written
// tables can return empty instead of erroring.
func (a *sqliteAdapter) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := a.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, sqlTableName(table),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite table lookup %s: %w", table, err)
	}
	return true, nil
}

func (a *sqliteAdapter) ensureTable(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, body TEXT NOT NULL)`, sqlTableName(table)))
	if err != nil {
		return fmt.Errorf("sqlite create table %s: %w", table, err)
	}
	return nil
}

func (a *sqliteAdapter) Find(ctx context.Context, table string) ([]entity.Entity, error) {
	ok, err := a.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT body FROM %q`, sqlTableName(table)))
	if err != nil {
		return nil, fmt.Errorf("sqlite find %s: %w", table, err)
	}
	defer rows.Close()

	var docs []entity.Entity
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		var doc entity.Entity
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return docs, nil
}

func (a *sqliteAdapter) FindByID(ctx context.Context, table, id string) (entity.Entity, error) {
	ok, err := a.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	var body string
	err = a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT body FROM %q WHERE id=?`, sqlTableName(table)), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s/%s: %w", table, id, err)
	}
	var doc entity.Entity
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

func (a *sqliteAdapter) Save(ctx context.Context, table string, docs []entity.Entity) ([]entity.Entity, error) {
	if err := requireIDs(docs); err != nil {
		return nil, err
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	if err := a.ensureTable(ctx, tx, table); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(
		`INSERT INTO %q (id, body) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET body=excluded.body`,
		sqlTableName(table))
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.ID(), err)
		}
		if _, err := tx.ExecContext(ctx, stmt, doc.ID(), string(data)); err != nil {
			return nil, fmt.Errorf("sqlite save %s/%s: %w", table, doc.ID(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save tx: %w", err)
	}
	return docs, nil
}

func (a *sqliteAdapter) RemoveByID(ctx context.Context, table, id string) error {
	ok, err := a.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	res, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id=?`, sqlTableName(table)), id)
	if err != nil {
		return fmt.Errorf("sqlite remove %s/%s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *sqliteAdapter) Clear(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, sqlTableName(table)))
	if err != nil {
		return fmt.Errorf("sqlite clear %s: %w", table, err)
	}
	return nil
}

func (a *sqliteAdapter) ClearAll(ctx context.Context) error {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?`, sqliteTablePrefix+"%")
	if err != nil {
		return fmt.Errorf("sqlite list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan table name: %w", err)
		}
		logical := strings.TrimPrefix(name, sqliteTablePrefix)
		if !IsSystemTable(logical) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("rows iteration: %w", err)
	}
	rows.Close()

	for _, name := range names {
		if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return fmt.Errorf("sqlite drop %s: %w", name, err)
		}
	}
	return nil
}
