package store

import (
	"context"
	"time"

	"sightline/pkg/los"
)

// QueryRecord is one persisted line-of-sight computation.
type QueryRecord struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Request   los.Request `json:"request"`
	Result    los.Result  `json:"result"`
}

// HistoryStore handles line-of-sight query history.
type HistoryStore interface {
	SaveQuery(ctx context.Context, rec *QueryRecord) error
	GetQuery(ctx context.Context, id string) (*QueryRecord, error)
	RecentQueries(ctx context.Context, limit int) ([]*QueryRecord, error)
	PruneQueries(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
	PruneCache(ctx context.Context, olderThan time.Duration) (int64, error)
}
