package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sightline/pkg/db"
	"sightline/pkg/store"
	"sightline/pkg/terrain"
)

// countingService returns x+y and counts calls.
type countingService struct {
	calls atomic.Int32
	fail  bool
}

func (s *countingService) Elevation(ctx context.Context, x, y float64) (float64, error) {
	s.calls.Add(1)
	if s.fail {
		return 0, terrain.ErrElevationUnavailable
	}
	return x + y, nil
}

func TestElevation_MemoryLayer(t *testing.T) {
	next := &countingService{}
	c := NewElevation(next, nil, "test", 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		z, err := c.Elevation(ctx, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, 15.0, z)
	}
	assert.EqualValues(t, 1, next.calls.Load())
	assert.Equal(t, Stats{MemoryHits: 2, Misses: 1}, c.Stats())

	// Distinct coordinates are distinct keys.
	z, err := c.Elevation(ctx, 10.000001, 5)
	require.NoError(t, err)
	assert.InDelta(t, 15.000001, z, 1e-9)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestElevation_ErrorsNotCached(t *testing.T) {
	next := &countingService{fail: true}
	c := NewElevation(next, nil, "test", 100)

	for i := 0; i < 2; i++ {
		_, err := c.Elevation(context.Background(), 1, 1)
		assert.True(t, errors.Is(err, terrain.ErrElevationUnavailable))
	}
	assert.EqualValues(t, 2, next.calls.Load())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestElevation_Cancelled(t *testing.T) {
	next := &countingService{}
	c := NewElevation(next, nil, "test", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Elevation(ctx, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, next.calls.Load())
}

func TestElevation_MemoryBound(t *testing.T) {
	c := NewElevation(&countingService{}, nil, "test", 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.Elevation(ctx, float64(i), 0)
		require.NoError(t, err)
	}
	c.mu.RLock()
	assert.Len(t, c.mem, 2)
	c.mu.RUnlock()
}

func TestElevation_EvictsOldestFirst(t *testing.T) {
	next := &countingService{}
	c := NewElevation(next, nil, "test", 3)
	ctx := context.Background()

	lookup := func(x float64) {
		t.Helper()
		_, err := c.Elevation(ctx, x, 0)
		require.NoError(t, err)
	}

	for _, x := range []float64{1, 2, 3, 4} { // 4 evicts 1
		lookup(x)
	}
	assert.EqualValues(t, 4, next.calls.Load())

	// The newer entries survive the eviction.
	for _, x := range []float64{2, 3, 4} {
		lookup(x)
	}
	assert.EqualValues(t, 4, next.calls.Load())
	assert.EqualValues(t, 3, c.Stats().MemoryHits)

	lookup(1)
	assert.EqualValues(t, 5, next.calls.Load(), "oldest entry was evicted")

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.mem, 3)
	assert.NotContains(t, c.mem, c.key(2, 0), "re-adding 1 evicts 2 next")
}

func TestElevation_PersistentLayer(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "cache_test.db"))
	require.NoError(t, err)
	defer d.Close()
	backing := store.NewSQLiteStore(d)
	ctx := context.Background()

	first := &countingService{}
	z, err := NewElevation(first, backing, "dem", 0).Elevation(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 7.0, z)

	// A fresh wrapper (no memory layer) is served from the store.
	second := &countingService{}
	c := NewElevation(second, backing, "dem", 0)
	z, err = c.Elevation(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 7.0, z)
	assert.EqualValues(t, 0, second.calls.Load())
	assert.Equal(t, Stats{StoreHits: 1}, c.Stats())

	// Another prefix does not see the entry.
	other := &countingService{}
	_, err = NewElevation(other, backing, "other", 0).Elevation(ctx, 3, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 1, other.calls.Load())
}

func TestElevation_Resolution(t *testing.T) {
	assert.Equal(t, 30.0, NewElevation(terrain.FlatSurface{CellSize: 30}, nil, "", 0).Resolution())
	assert.Equal(t, 0.0, NewElevation(&countingService{}, nil, "", 0).Resolution())
}
