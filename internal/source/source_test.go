package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotms/server/internal/cache"
	"github.com/geotms/server/internal/catalog"
	"github.com/geotms/server/internal/pyramid"
	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/tmserr"
)

func tile(t *testing.T, v float64) *raster.MultibandTile {
	t.Helper()
	band := raster.NewTile(1, 1, raster.Int)
	band.Cells[0] = v
	m, err := raster.NewMultibandTile(band)
	require.NoError(t, err)
	return m
}

func TestPyramidSource(t *testing.T) {
	l := raster.NewLayer(raster.LayerMetadata{Zoom: 2})
	l.Add(raster.SpatialKey{Col: 1, Row: 1}, tile(t, 4))
	l.Add(raster.SpatialKey{Col: 1, Row: 1}, tile(t, 5))
	l.Add(raster.SpatialKey{Col: 3, Row: 3}, tile(t, 6))
	p, err := pyramid.Build(context.Background(), l, pyramid.Options{EndZoom: 1})
	require.NoError(t, err)

	src, err := Open(context.Background(), FromPyramid(p), Options{})
	require.NoError(t, err)
	defer src.Close()

	got, err := src.Fetch(context.Background(), 2, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Get(0, 0, 0), "first shard wins")

	for _, key := range [][3]int{{2, 2, 1}, {2, 9, 9}, {5, 0, 0}, {0, 0, 0}} {
		_, err := src.Fetch(context.Background(), key[0], key[1], key[2])
		assert.True(t, errors.Is(err, ErrNotFound), "key %v: %v", key, err)
		var re *tmserr.RangeError
		assert.False(t, errors.As(err, &re), "range errors stay internal")
	}
}

func TestCatalogSourceCaches(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	defer cat.Close()

	l := raster.NewLayer(raster.LayerMetadata{Zoom: 3})
	l.Add(raster.SpatialKey{Col: 2, Row: 5}, tile(t, 42))
	_, err = catalog.WriteLayer(ctx, cat, "dem", l)
	require.NoError(t, err)

	mgr, err := cache.NewManager(cache.Config{SourceCacheSize: 8})
	require.NoError(t, err)

	src, err := Open(ctx, FromCatalog("sqlite://test", "dem"), Options{Catalog: cat, Cache: mgr})
	require.NoError(t, err)
	assert.Equal(t, "sqlite://test#dem", src.Name())

	got, err := src.Fetch(ctx, 3, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.Get(0, 0, 0))
	assert.Equal(t, 1, mgr.Stats().SourceEntries)

	again, err := src.Fetch(ctx, 3, 2, 5)
	require.NoError(t, err)
	assert.Same(t, got, again)

	_, err = src.Fetch(ctx, 3, 2, 6)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, src.Close())
	_, err = cat.Get(ctx, "dem", 3, 2, 5)
	assert.NoError(t, err, "borrowed catalog stays open")
}

func TestCatalogSourceCorruptTile(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(ctx, "mem://")
	require.NoError(t, err)
	defer cat.Close()
	require.NoError(t, cat.Put(ctx, "dem", 0, 0, 0, []byte{0x0a, 0xff}))

	src, err := Open(ctx, FromCatalog("mem://", "dem"), Options{Catalog: cat})
	require.NoError(t, err)
	_, err = src.Fetch(ctx, 0, 0, 0)
	var re *tmserr.RenderError
	assert.ErrorAs(t, err, &re)
}

func TestOpenValidatesSpec(t *testing.T) {
	var ce *tmserr.ConfigurationError
	_, err := Open(context.Background(), Spec{}, Options{})
	assert.ErrorAs(t, err, &ce)
	_, err = Open(context.Background(), FromPyramid(nil), Options{})
	assert.ErrorAs(t, err, &ce)
	_, err = Open(context.Background(), FromCatalog("mem://", ""), Options{})
	assert.ErrorAs(t, err, &ce)

	assert.Equal(t, KindCatalog, FromCatalog("mem://", "a").Kind())
	assert.Equal(t, "mem://#a", FromCatalog("mem://", "a").String())
}
