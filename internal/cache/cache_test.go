package cache

import (
	"testing"
	"time"

	"github.com/geotms/server/internal/raster"
)

func TestTileKey(t *testing.T) {
	got := TileKey("r1", 0, 1, 2)
	if got != "tile:r1:0/1/2" {
		t.Fatalf("unexpected key %q", got)
	}
	if TileKey("r1", 0, 1, 2) == TileKey("r2", 0, 1, 2) {
		t.Fatalf("expected routes to produce distinct keys")
	}
	if SourceKey("mem://", "a", 1, 2, 3) == SourceKey("mem://", "b", 1, 2, 3) {
		t.Fatalf("expected layers to produce distinct keys")
	}
}

func TestManagerTiles(t *testing.T) {
	m, err := NewManager(Config{TileCacheSizeMB: 8, TileTTL: time.Minute, SourceCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetTile("k"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := m.SetTile("k", []byte("png")); err != nil {
		t.Fatalf("SetTile: %v", err)
	}
	data, ok := m.GetTile("k")
	if !ok || string(data) != "png" {
		t.Fatalf("expected hit, got %q %v", data, ok)
	}

	s := m.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.TileEntries != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestManagerSourceEviction(t *testing.T) {
	m, err := NewManager(Config{SourceCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tile := &raster.MultibandTile{}
	m.SetSource("a", tile)
	m.SetSource("b", tile)
	m.SetSource("c", tile)

	if _, ok := m.GetSource("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if got, ok := m.GetSource("c"); !ok || got != tile {
		t.Fatalf("expected newest entry to be cached")
	}
}

func TestDisabledManager(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.SetTile("k", []byte("x")); err != nil {
		t.Fatalf("SetTile on disabled cache: %v", err)
	}
	if _, ok := m.GetTile("k"); ok {
		t.Fatalf("disabled cache must never hit")
	}
	m.SetSource("k", &raster.MultibandTile{})
	if _, ok := m.GetSource("k"); ok {
		t.Fatalf("disabled source cache must never hit")
	}

	var nilManager *Manager
	if _, ok := nilManager.GetTile("k"); ok {
		t.Fatalf("nil manager must never hit")
	}
	if err := nilManager.Close(); err != nil {
		t.Fatalf("Close on nil manager: %v", err)
	}
}
