// Package db owns the SQLite file behind query history and the persistent
// elevation cache, including its schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// Tables with a created_at column that maintenance prunes.
const (
	tableQueries = "los_queries"
	tableCache   = "elevation_cache"
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database at path, creating parent directories, and migrates
// it to the latest schema.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// WAL readers don't block, but SQLite has one writer.
	conn.SetMaxOpenConns(1)

	d := &DB{conn}
	if err := d.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open db %s: %w", path, err)
	}
	if err := d.MigrateUp(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

// dsn applies connection pragmas through the driver so every pooled
// connection gets them.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(30000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// PruneCache removes elevation cache entries older than olderThan.
func (d *DB) PruneCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	return d.deleteBefore(ctx, tableCache, time.Now().Add(-olderThan))
}

// PruneQueries removes query history older than olderThan.
func (d *DB) PruneQueries(ctx context.Context, olderThan time.Duration) (int64, error) {
	return d.deleteBefore(ctx, tableQueries, time.Now().Add(-olderThan))
}

func (d *DB) deleteBefore(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	res, err := d.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}
	return res.RowsAffected()
}
