package pyramid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/tmserr"
)

func intTile(t *testing.T, cells ...float64) *raster.MultibandTile {
	t.Helper()
	band := raster.NewTile(2, 2, raster.Int)
	copy(band.Cells, cells)
	nd := -1.0
	band.NoData = &nd
	m, err := raster.NewMultibandTile(band)
	require.NoError(t, err)
	return m
}

// gridLayer fills a size x size key grid at zoom.
func gridLayer(t *testing.T, zoom, size int) *raster.Layer {
	t.Helper()
	l := raster.NewLayer(raster.LayerMetadata{Zoom: zoom, CRS: raster.WebMercator})
	for c := 0; c < size; c++ {
		for r := 0; r < size; r++ {
			v := float64(c*10 + r)
			l.Add(raster.SpatialKey{Col: c, Row: r}, intTile(t, v, v, v, v))
		}
	}
	return l
}

func intPtr(v int) *int { return &v }

func TestBuildLevels(t *testing.T) {
	p, err := Build(context.Background(), gridLayer(t, 5, 4), Options{EndZoom: 0})
	require.NoError(t, err)

	assert.Equal(t, 5, p.StartZoom())
	assert.Equal(t, 0, p.EndZoom())
	require.Len(t, p.Levels(), 6)

	top, err := p.Level(5)
	require.NoError(t, err)
	assert.Equal(t, raster.Bounds{MaxKey: raster.SpatialKey{Col: 3, Row: 3}}, top.Metadata.Bounds)

	z4, err := p.Level(4)
	require.NoError(t, err)
	assert.Equal(t, 4, z4.Metadata.Zoom)
	assert.Len(t, z4.Tiles, 4)
	assert.Equal(t, raster.SpatialKey{Col: 1, Row: 1}, z4.Metadata.Bounds.MaxKey)

	z0, err := p.Level(0)
	require.NoError(t, err)
	assert.Len(t, z0.Tiles, 1)

	for _, z := range []int{6, -1} {
		_, err := p.Level(z)
		var re *tmserr.RangeError
		require.ErrorAs(t, err, &re, "zoom %d", z)
		assert.Equal(t, tmserr.AxisZoom, re.Axis)
	}
}

func TestBuildExplicitZoomRange(t *testing.T) {
	p, err := Build(context.Background(), gridLayer(t, 5, 4), Options{StartZoom: intPtr(4), EndZoom: 2})
	require.NoError(t, err)
	require.Len(t, p.Levels(), 3)
	l, err := p.Level(2)
	require.NoError(t, err)
	assert.Same(t, p.Levels()[2], l)

	_, err = Build(context.Background(), gridLayer(t, 5, 4), Options{StartZoom: intPtr(6)})
	var ce *tmserr.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	_, err = Build(context.Background(), gridLayer(t, 5, 4), Options{EndZoom: 7})
	assert.ErrorAs(t, err, &ce)
}

type countingReprojector struct {
	calls int
}

func (c *countingReprojector) Reproject(_ context.Context, l *raster.Layer, target string) (*raster.Layer, error) {
	c.calls++
	out := raster.NewLayer(l.Metadata)
	out.Metadata.CRS = target
	out.Metadata.Zoom = 1
	for k, shards := range l.Tiles {
		out.Tiles[k] = shards
	}
	return out, nil
}

func TestBuildRejectsBeforeWork(t *testing.T) {
	re := &countingReprojector{}
	layer := gridLayer(t, 0, 2)
	layer.Metadata.CRS = "EPSG:4326"

	_, err := Build(context.Background(), layer, Options{Resample: "bicubic-ish", Reprojector: re})
	var ce *tmserr.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, re.calls, "unknown resample method must fail before reprojection")

	_, err = Build(context.Background(), layer, Options{})
	require.ErrorAs(t, err, &ce, "foreign CRS without a reprojector")

	p, err := Build(context.Background(), layer, Options{Reprojector: re})
	require.NoError(t, err)
	assert.Equal(t, 1, re.calls)
	assert.Equal(t, 1, p.StartZoom())
}

func TestBuildMissingStartZoom(t *testing.T) {
	_, err := Build(context.Background(), gridLayer(t, 0, 2), Options{})
	var ce *tmserr.ConfigurationError
	require.ErrorAs(t, err, &ce)

	p, err := Build(context.Background(), gridLayer(t, 0, 2), Options{StartZoom: intPtr(1)})
	require.NoError(t, err)
	assert.Len(t, p.Levels(), 2)
}

// quadLayer puts a distinct tile at (0,0) and constant 9s in its siblings.
func quadLayer(t *testing.T, first *raster.MultibandTile) *raster.Layer {
	t.Helper()
	l := raster.NewLayer(raster.LayerMetadata{Zoom: 1})
	l.Add(raster.SpatialKey{}, first)
	l.Add(raster.SpatialKey{Col: 1}, intTile(t, 9, 9, 9, 9))
	l.Add(raster.SpatialKey{Row: 1}, intTile(t, 9, 9, 9, 9))
	l.Add(raster.SpatialKey{Col: 1, Row: 1}, intTile(t, 9, 9, 9, 9))
	return l
}

func parentCell(t *testing.T, layer *raster.Layer, method ResampleMethod, col, row int) float64 {
	t.Helper()
	p, err := Build(context.Background(), layer, Options{Resample: method})
	require.NoError(t, err)
	z0, err := p.Level(0)
	require.NoError(t, err)
	shards := z0.Lookup(raster.SpatialKey{})
	require.Len(t, shards, 1)
	return shards[0].Get(0, col, row)
}

func TestResampleMethods(t *testing.T) {
	cases := []struct {
		method ResampleMethod
		want   float64
	}{
		{NearestNeighbor, 1},
		{Max, 4},
		{Min, 1},
		{Average, 3},
		{Bilinear, 3},
		{Median, 3},
		{Mode, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			got := parentCell(t, quadLayer(t, intTile(t, 1, 2, 3, 4)), tc.method, 0, 0)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResampleKernelOnConstant(t *testing.T) {
	for _, m := range []ResampleMethod{CubicConvolution, CubicSpline, Lanczos} {
		got := parentCell(t, quadLayer(t, intTile(t, 9, 9, 9, 9)), m, 1, 1)
		assert.Equal(t, 9.0, got, m)
	}
}

func TestResampleSkipsNoData(t *testing.T) {
	got := parentCell(t, quadLayer(t, intTile(t, -1, -1, -1, 5)), NearestNeighbor, 0, 0)
	assert.Equal(t, 5.0, got)

	got = parentCell(t, quadLayer(t, intTile(t, -1, -1, -1, -1)), Max, 0, 0)
	assert.Equal(t, -1.0, got, "all no-data folds to the no-data value")

	sparse := raster.NewLayer(raster.LayerMetadata{Zoom: 1})
	sparse.Add(raster.SpatialKey{}, intTile(t, 1, 1, 1, 1))
	got = parentCell(t, sparse, NearestNeighbor, 1, 1)
	assert.Equal(t, -1.0, got, "missing children read as no-data")
}

func TestBuildRejectsNegativeKeys(t *testing.T) {
	l := raster.NewLayer(raster.LayerMetadata{Zoom: 2})
	l.Add(raster.SpatialKey{Col: -1}, intTile(t, 1, 1, 1, 1))
	_, err := Build(context.Background(), l, Options{})
	var ce *tmserr.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestParseResampleMethod(t *testing.T) {
	m, err := ParseResampleMethod("NearestNeighbor")
	require.NoError(t, err)
	assert.Equal(t, NearestNeighbor, m)

	m, err = ParseResampleMethod("Cubic_Convolution")
	require.NoError(t, err)
	assert.Equal(t, CubicConvolution, m)

	_, err = ParseResampleMethod("gaussian")
	assert.Error(t, err)
}

func TestStorageLevels(t *testing.T) {
	l, err := ParseStorageLevel("memory_and_disk_ser_2")
	require.NoError(t, err)
	assert.Equal(t, StorageMemoryAndDiskSer2, l)
	assert.True(t, l.Replicated())
	assert.True(t, l.Serialized())

	l, err = ParseStorageLevel("")
	require.NoError(t, err)
	assert.Equal(t, StorageNone, l)

	_, err = ParseStorageLevel("TAPE")
	assert.Error(t, err)

	p, err := Build(context.Background(), gridLayer(t, 1, 2), Options{})
	require.NoError(t, err)
	assert.Equal(t, StorageNone, p.Persisted())
	require.NoError(t, p.SetPersist(StorageDiskOnly))
	assert.Equal(t, StorageDiskOnly, p.Persisted())
	assert.Error(t, p.SetPersist("TAPE"))
	assert.Equal(t, StorageDiskOnly, p.Persisted())
}

func TestBuildRejectsUnknownStorageLevel(t *testing.T) {
	_, err := Build(context.Background(), gridLayer(t, 2, 2), Options{Persist: "TAPE"})
	var ce *tmserr.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "TAPE")

	p, err := Build(context.Background(), gridLayer(t, 2, 2), Options{Persist: StorageOffHeap})
	require.NoError(t, err)
	assert.Equal(t, StorageOffHeap, p.Persisted())
}
