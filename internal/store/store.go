// Package store is the embedded relational persistence layer: schema
// migrations, transactional writes, and full-text search over
// transcript segments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"

	_ "modernc.org/sqlite" // pure-Go driver
)

// Store is the single handle through which the pipeline engine, job
// manager, and HTTP API read and write persisted state.
type Store struct {
	db *sql.DB
}

// Config controls connection-pool behavior.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns sensible pool settings for a single-process,
// mostly-single-writer embedded database.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// Open opens (creating if absent) the database at path, enables WAL
// journaling and normal synchronous commits, and runs migrations.
func Open(path string, cfg Config) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "create data directory", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "open database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.StoreError, "ping database", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.StoreError, "migrate database", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a single transaction, committing on success and
// rolling back on any error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
