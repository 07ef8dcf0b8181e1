// Package cache provides caching for rendered tiles and decoded source tiles.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/geotms/server/internal/raster"
)

// Config contains cache configuration.
type Config struct {
	// TileCacheSizeMB bounds rendered tile bytes. Zero disables the cache.
	TileCacheSizeMB int
	TileTTL         time.Duration
	// SourceCacheSize is the number of decoded tiles kept. Zero disables it.
	SourceCacheSize int
}

// Manager manages the rendered tile and decoded source caches. A nil
// *Manager is a valid cache that never hits.
type Manager struct {
	tileCache   *bigcache.BigCache
	sourceCache *lru.Cache[string, *raster.MultibandTile]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{}

	if cfg.TileCacheSizeMB > 0 {
		ttl := cfg.TileTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		tileCacheConfig := bigcache.Config{
			Shards:             1024,
			LifeWindow:         ttl,
			CleanWindow:        ttl / 2,
			MaxEntriesInWindow: 100000,
			MaxEntrySize:       100 * 1024, // 100KB per tile
			HardMaxCacheSize:   cfg.TileCacheSizeMB,
			Verbose:            false,
		}
		tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create tile cache: %w", err)
		}
		m.tileCache = tileCache
	}

	if cfg.SourceCacheSize > 0 {
		sourceCache, err := lru.New[string, *raster.MultibandTile](cfg.SourceCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create source cache: %w", err)
		}
		m.sourceCache = sourceCache
	}

	return m, nil
}

// GetTile retrieves a rendered tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	if m == nil || m.tileCache == nil {
		return nil, false
	}
	data, err := m.tileCache.Get(key)
	if err != nil {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return data, true
}

// SetTile stores a rendered tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	if m == nil || m.tileCache == nil {
		return nil
	}
	return m.tileCache.Set(key, data)
}

// GetSource retrieves a decoded source tile.
func (m *Manager) GetSource(key string) (*raster.MultibandTile, bool) {
	if m == nil || m.sourceCache == nil {
		return nil, false
	}
	return m.sourceCache.Get(key)
}

// SetSource stores a decoded source tile.
func (m *Manager) SetSource(key string, tile *raster.MultibandTile) {
	if m == nil || m.sourceCache == nil {
		return
	}
	m.sourceCache.Add(key, tile)
}

// TileKey generates a cache key for a rendered tile of route.
func TileKey(route string, z, x, y int) string {
	return fmt.Sprintf("tile:%s:%d/%d/%d", route, z, x, y)
}

// SourceKey generates a cache key for a decoded catalog tile.
func SourceKey(uri, layer string, z, x, y int) string {
	return fmt.Sprintf("src:%s#%s:%d/%d/%d", uri, layer, z, x, y)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	TileEntries   int
	TileBytes     int
	SourceEntries int
	Hits          uint64
	Misses        uint64
}

// Stats returns cache statistics.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	s := Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
	if m.tileCache != nil {
		s.TileEntries = m.tileCache.Len()
		s.TileBytes = m.tileCache.Capacity()
	}
	if m.sourceCache != nil {
		s.SourceEntries = m.sourceCache.Len()
	}
	return s
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	if m == nil || m.tileCache == nil {
		return nil
	}
	return m.tileCache.Close()
}
