// Package storage provides the embedded SQLite storage layer for the
// Cynic kernel: a single-writer, single-file database holding judgments,
// the hash chain, patterns, facts, feedback, and the learner's persisted
// state. It manages connection setup, retry-on-busy, and migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo
)

// DB wraps a single *sql.DB connection to an SQLite database file. SQLite
// serializes writers internally; a mutex around writes keeps retry
// bookkeeping simple and avoids SQLITE_BUSY storms under concurrent
// background loops (chain sealing, learning cycle sweep, retention).
type DB struct {
	conn   *sql.DB
	path   string
	writeMu sync.Mutex
	logger *slog.Logger
}

// New opens (creating if absent) the SQLite database at path and
// configures WAL mode and a busy timeout appropriate for a single-process,
// single-writer embedded deployment.
func New(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// A single physical writer; SQLite WAL allows concurrent readers.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	return &DB{conn: conn, path: path, logger: logger}, nil
}

// Conn returns the underlying *sql.DB for use by other packages that need
// raw query access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks connectivity to the database file.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close shuts down the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// withWriteRetry serializes fn against other writers on this DB and
// retries on SQLITE_BUSY/SQLITE_LOCKED with jittered backoff. Reads do
// not need this — SQLite WAL mode lets them proceed concurrently with a
// writer.
func (db *DB) withWriteRetry(ctx context.Context, fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	const maxRetries = 5
	backoff := 20 * time.Millisecond
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
	}
	return err
}
