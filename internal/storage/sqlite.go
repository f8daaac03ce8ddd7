// Package storage persists the last known cover positions in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the SQLite file at path, creating its directory when missing.
func NewDB(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "storage: creating database directory")
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage: opening database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage: connecting to database")
	}

	// a single writer keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)

	return &DB{DB: db, path: path}, nil
}

func (db *DB) Path() string {
	return db.path
}
