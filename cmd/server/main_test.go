package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geotms/server/internal/api"
	"github.com/geotms/server/internal/catalog"
	"github.com/geotms/server/internal/codec"
	"github.com/geotms/server/internal/config"
	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/tmserr"
)

func constTile(t *testing.T, v float64) *raster.MultibandTile {
	t.Helper()
	band := raster.NewTile(2, 2, raster.Int)
	for i := range band.Cells {
		band.Cells[i] = v
	}
	m, err := raster.NewMultibandTile(band)
	require.NoError(t, err)
	return m
}

func writeTiles(t *testing.T, dir string, tiles map[string]float64) {
	t.Helper()
	for name, v := range tiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), codec.Encode(constTile(t, v)), 0644))
	}
}

func TestIngestWritesPyramid(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTiles(t, dir, map[string]float64{"0_0.tile": 1, "1_0.tile": 2, "0_1.tile": 3, "1_1.tile": 4})
	uri := "sqlite://" + filepath.Join(t.TempDir(), "tiles.db")

	n, err := ingest(ctx, ingestOptions{Catalog: uri, Layer: "dem", Dir: dir, Zoom: 1, CRS: raster.WebMercator, Pyramid: true, Resample: "max"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	c, err := catalog.Open(ctx, uri)
	require.NoError(t, err)
	defer c.Close()

	tile, err := catalog.Read(ctx, c, "dem", 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tile.Get(0, 0, 0))

	parent, err := catalog.Read(ctx, c, "dem", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, parent.Get(0, 1, 1))
}

func TestIngestRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	writeTiles(t, dir, map[string]float64{"tile.tile": 1})
	_, err := ingest(context.Background(), ingestOptions{Catalog: "mem://", Layer: "dem", Dir: dir, Zoom: 1})
	assert.Error(t, err)

	_, err = ingest(context.Background(), ingestOptions{Catalog: "mem://", Layer: "dem", Dir: t.TempDir(), Zoom: 1})
	assert.Error(t, err)
}

func TestTileKey(t *testing.T) {
	key, err := tileKey("12_7.tile")
	require.NoError(t, err)
	assert.Equal(t, raster.SpatialKey{Col: 12, Row: 7}, key)

	for _, name := range []string{"1_2junk.tile", "1_2_3.tile", "1.tile", "a_2.tile", "1_.tile"} {
		_, err := tileKey(name)
		assert.Error(t, err, name)
	}

	dir := t.TempDir()
	writeTiles(t, dir, map[string]float64{"0_0.tile": 1, "1_2junk.tile": 2})
	_, err = ingest(context.Background(), ingestOptions{Catalog: "mem://", Layer: "dem", Dir: dir, Zoom: 2})
	assert.ErrorContains(t, err, "1_2junk.tile")
}

func TestIngestOptionsAreValidated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTiles(t, dir, map[string]float64{"0_0.tile": 1, "1_1.tile": 2})
	base := ingestOptions{Catalog: "mem://", Layer: "dem", Dir: dir, Zoom: 1, CRS: raster.WebMercator, Pyramid: true}

	opts := base
	opts.Persist = "TAPE"
	_, err := ingest(ctx, opts)
	var ce *tmserr.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	opts = base
	opts.CellType = "float64"
	_, err = ingest(ctx, opts)
	assert.ErrorContains(t, err, "expected float64")

	opts = base
	opts.CellType = "complex"
	_, err = ingest(ctx, opts)
	assert.Error(t, err)

	opts = base
	opts.CellType = "int32"
	opts.Persist = "memory_and_disk_2"
	n, err := ingest(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBuildRouteFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeTiles(t, dir, map[string]float64{"0_0.tile": 5})
	uri := "sqlite://" + filepath.Join(t.TempDir(), "tiles.db")
	_, err := ingest(ctx, ingestOptions{Catalog: uri, Layer: "dem", Dir: dir, Zoom: 3})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Sources = []config.SourceConfig{{Catalog: uri, Layer: "dem"}}
	cfg.Display.Min, cfg.Display.Max = 0, 10
	require.NoError(t, cfg.Validate())

	app, err := buildRoute(ctx, cfg, nil, api.NewMetrics(nil), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()
	assert.Equal(t, "colormap", app.route.Kind())

	data, err := app.route.Tile(ctx, 3, 0, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, cfg.Render.TileSize, img.Bounds().Dx())

	_, err = app.route.Tile(ctx, 3, 1, 0)
	assert.True(t, tmserr.IsNotFound(err))
}

func TestBuildRouteRGBSharesCatalog(t *testing.T) {
	ctx := context.Background()
	uri := "sqlite://" + filepath.Join(t.TempDir(), "tiles.db")
	for layer, v := range map[string]float64{"red": 10, "green": 0, "blue": 5} {
		dir := t.TempDir()
		writeTiles(t, dir, map[string]float64{"0_0.tile": v})
		_, err := ingest(ctx, ingestOptions{Catalog: uri, Layer: layer, Dir: dir, Zoom: 2})
		require.NoError(t, err)
	}

	cfg := config.DefaultConfig()
	cfg.Display.Mode = "rgb"
	cfg.Display.Min, cfg.Display.Max = 0, 10
	cfg.Sources = []config.SourceConfig{{Catalog: uri, Layer: "red"}, {Catalog: uri, Layer: "green"}, {Catalog: uri, Layer: "blue"}}
	require.NoError(t, cfg.Validate())

	app, err := buildRoute(ctx, cfg, nil, api.NewMetrics(nil), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()
	assert.Len(t, app.catalogs, 1)
	assert.Equal(t, "composite", app.route.Kind())

	data, err := app.route.Tile(ctx, 2, 0, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, _, _ := img.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
}
