package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sightline/pkg/db"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	HistoryStore
	CacheStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Query History ---

// SaveQuery persists rec, assigning an ID and timestamp when unset.
func (s *SQLiteStore) SaveQuery(ctx context.Context, rec *QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	resJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `INSERT OR REPLACE INTO los_queries (id, request, result, visible, samples, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, string(reqJSON), string(resJSON), rec.Result.Visible, rec.Result.SamplesEvaluated, rec.CreatedAt)
	return err
}

// GetQuery returns the record with the given ID, or nil if there is none.
func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*QueryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, result, created_at FROM los_queries WHERE id = ?`, id)

	rec, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	return rec, err
}

// RecentQueries returns up to limit records, newest first.
func (s *SQLiteStore) RecentQueries(ctx context.Context, limit int) ([]*QueryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request, result, created_at FROM los_queries ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*QueryRecord
	for rows.Next() {
		rec, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneQueries removes history older than olderThan.
func (s *SQLiteStore) PruneQueries(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.db.PruneQueries(ctx, olderThan)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (*QueryRecord, error) {
	var (
		rec     QueryRecord
		reqJSON string
		resJSON string
	)
	if err := row.Scan(&rec.ID, &reqJSON, &resJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return nil, fmt.Errorf("query %s: corrupt request: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(resJSON), &rec.Result); err != nil {
		return nil, fmt.Errorf("query %s: corrupt result: %w", rec.ID, err)
	}
	return &rec, nil
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM elevation_cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		return nil, false
	}
	return val, true
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	query := `INSERT OR REPLACE INTO elevation_cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

// PruneCache removes cache entries older than olderThan.
func (s *SQLiteStore) PruneCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.db.PruneCache(ctx, olderThan)
}
