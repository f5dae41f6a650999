package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS polybot_state (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);`

// SQLiteBackend keeps every namespace in one SQLite database, one row per
// key. Values are stored as JSON.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database and its directory at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	// A single connection serializes writers; one bot owns the file anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("create schema: %w", err)}
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load returns the namespace's rows as a State.
func (b *SQLiteBackend) Load(ns Namespace) (State, error) {
	rows, err := b.db.Query(`SELECT key, value FROM polybot_state WHERE namespace = ?`, ns.String())
	if err != nil {
		return nil, &IOError{Op: "load", Path: b.path, Err: err}
	}
	defer rows.Close()

	s := State{}
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, &IOError{Op: "load", Path: b.path, Err: err}
		}
		var v any
		if err := unmarshalJSON(raw, &v); err != nil {
			return nil, &IOError{Op: "load", Path: b.path, Err: fmt.Errorf("parse %q: %w", key, err)}
		}
		if v, err = normalizeNumbers(v); err != nil {
			return nil, &IOError{Op: "load", Path: b.path, Err: fmt.Errorf("parse %q: %w", key, err)}
		}
		s[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "load", Path: b.path, Err: err}
	}
	return s, nil
}

// Save replaces the namespace's rows in a single transaction.
func (b *SQLiteBackend) Save(ns Namespace, s State) (err error) {
	tx, err := b.db.Begin()
	if err != nil {
		return &IOError{Op: "save", Path: b.path, Err: err}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM polybot_state WHERE namespace = ?`, ns.String()); err != nil {
		return &IOError{Op: "save", Path: b.path, Err: err}
	}
	stmt, err := tx.Prepare(`INSERT INTO polybot_state (namespace, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return &IOError{Op: "save", Path: b.path, Err: err}
	}
	defer stmt.Close()

	for key, value := range s {
		raw, merr := json.Marshal(value)
		if merr != nil {
			err = &IOError{Op: "save", Path: b.path, Err: fmt.Errorf("encode %q: %w", key, merr)}
			return err
		}
		if _, err = stmt.Exec(ns.String(), key, raw); err != nil {
			return &IOError{Op: "save", Path: b.path, Err: err}
		}
	}
	if err = tx.Commit(); err != nil {
		return &IOError{Op: "save", Path: b.path, Err: err}
	}
	return nil
}
