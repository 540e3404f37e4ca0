package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"sightline/pkg/terrain"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Stats counts lookups served by an Elevation cache.
type Stats struct {
	MemoryHits uint64
	StoreHits  uint64
	Misses     uint64
}

// Elevation memoizes successful lookups of an ElevationService, first in
// memory and then in an optional persistent Cacher. Keys are the exact
// coordinate bits, so cached answers are identical to uncached ones.
// Failed lookups are never cached.
type Elevation struct {
	next    terrain.ElevationService
	backing Cacher
	prefix  string
	maxMem  int

	mu    sync.RWMutex
	mem   map[string]float64
	order []string // Insertion ring; order[evict] is evicted first once full
	evict int

	memHits   atomic.Uint64
	storeHits atomic.Uint64
	misses    atomic.Uint64
}

// NewElevation wraps next. backing may be nil. prefix namespaces keys so
// several terrain sources can share one store. maxMem <= 0 disables the
// in-memory layer.
func NewElevation(next terrain.ElevationService, backing Cacher, prefix string, maxMem int) *Elevation {
	return &Elevation{
		next:    next,
		backing: backing,
		prefix:  prefix,
		maxMem:  maxMem,
		mem:     make(map[string]float64),
	}
}

// Elevation implements terrain.ElevationService.
func (c *Elevation) Elevation(ctx context.Context, x, y float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := c.key(x, y)

	if c.maxMem > 0 {
		c.mu.RLock()
		z, ok := c.mem[key]
		c.mu.RUnlock()
		if ok {
			c.memHits.Add(1)
			return z, nil
		}
	}

	if c.backing != nil {
		if raw, ok := c.backing.GetCache(ctx, key); ok && len(raw) == 8 {
			z := math.Float64frombits(binary.LittleEndian.Uint64(raw))
			c.storeHits.Add(1)
			c.remember(key, z)
			return z, nil
		}
	}

	z, err := c.next.Elevation(ctx, x, y)
	if err != nil {
		return 0, err
	}
	c.misses.Add(1)
	c.remember(key, z)

	if c.backing != nil {
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], math.Float64bits(z))
		if err := c.backing.SetCache(ctx, key, raw[:]); err != nil {
			slog.Warn("Elevation cache write failed", "key", key, "error", err)
		}
	}
	return z, nil
}

// Resolution forwards the wrapped service's resolution, or 0 when unknown.
func (c *Elevation) Resolution() float64 {
	if r, ok := c.next.(terrain.Resolver); ok {
		return r.Resolution()
	}
	return 0
}

// Stats returns lookup counters.
func (c *Elevation) Stats() Stats {
	return Stats{
		MemoryHits: c.memHits.Load(),
		StoreHits:  c.storeHits.Load(),
		Misses:     c.misses.Load(),
	}
}

func (c *Elevation) remember(key string, z float64) {
	if c.maxMem <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mem[key]; ok {
		c.mem[key] = z
		return
	}
	if len(c.order) < c.maxMem {
		c.order = append(c.order, key)
	} else {
		delete(c.mem, c.order[c.evict])
		c.order[c.evict] = key
		c.evict = (c.evict + 1) % c.maxMem
	}
	c.mem[key] = z
}

func (c *Elevation) key(x, y float64) string {
	return fmt.Sprintf("%s:%016x:%016x", c.prefix, math.Float64bits(x), math.Float64bits(y))
}
