// Package pyramid builds zoom pyramids from a tiled raster layer and serves
// pre-rendered PNG tiles by column, row and zoom.
package pyramid

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"

	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/tmserr"
)

// Reprojector moves a layer into another CRS using the zoomed layout
// scheme. The math lives outside this package.
type Reprojector interface {
	Reproject(ctx context.Context, layer *raster.Layer, targetCRS string) (*raster.Layer, error)
}

// Options controls pyramid construction.
type Options struct {
	// StartZoom is the highest zoom level. Nil uses the layer's zoom.
	StartZoom *int
	// EndZoom is the lowest zoom level, inclusive.
	EndZoom int
	// Resample folds child cells into parent cells. Empty means nearest.
	Resample ResampleMethod
	// Persist is recorded on the pyramid as a caching hint.
	Persist StorageLevel
	// Reprojector is required for layers not already in EPSG:3857.
	Reprojector Reprojector
	// Concurrency bounds per-level workers. Zero uses GOMAXPROCS.
	Concurrency int
}

// Pyramid holds one layer per zoom from StartZoom (index 0) down to EndZoom.
type Pyramid struct {
	levels    []*raster.Layer
	startZoom int
	endZoom   int

	mu      sync.RWMutex
	persist StorageLevel
}

// Build validates opts and materializes every level by repeated 2x
// downsampling.
func Build(ctx context.Context, layer *raster.Layer, opts Options) (*Pyramid, error) {
	method := opts.Resample
	if method == "" {
		method = NearestNeighbor
	}
	if !method.Valid() {
		return nil, tmserr.Configf("%q is not a known resample method", string(method))
	}
	if err := checkStorageLevel(opts.Persist); err != nil {
		return nil, err
	}
	if layer == nil {
		return nil, tmserr.Configf("layer is required")
	}

	if !isWebMercator(layer.Metadata.CRS) {
		if opts.Reprojector == nil {
			return nil, tmserr.Configf("layer CRS %q needs a reprojector to reach %s", layer.Metadata.CRS, raster.WebMercator)
		}
		reprojected, err := opts.Reprojector.Reproject(ctx, layer, raster.WebMercator)
		if err != nil {
			return nil, fmt.Errorf("reproject layer: %w", err)
		}
		layer = reprojected
	}

	srcZoom := layer.Metadata.Zoom
	var start int
	switch {
	case opts.StartZoom != nil:
		start = *opts.StartZoom
		if srcZoom == 0 {
			srcZoom = start
		}
		if start > srcZoom {
			return nil, tmserr.Configf("start zoom %d is above the layer zoom %d", start, srcZoom)
		}
	case srcZoom > 0:
		start = srcZoom
	default:
		return nil, tmserr.Configf("start zoom is unknown: layer has no zoom and none was given")
	}
	if opts.EndZoom < 0 || opts.EndZoom > start {
		return nil, tmserr.Configf("end zoom %d must be within [0, %d]", opts.EndZoom, start)
	}

	current, err := normalize(layer, srcZoom)
	if err != nil {
		return nil, err
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	for current.Metadata.Zoom > start {
		if current, err = downsample(ctx, current, method, workers); err != nil {
			return nil, err
		}
	}

	p := &Pyramid{startZoom: start, endZoom: opts.EndZoom, persist: opts.Persist}
	p.levels = append(p.levels, current)
	for z := start - 1; z >= opts.EndZoom; z-- {
		if current, err = downsample(ctx, current, method, workers); err != nil {
			return nil, err
		}
		p.levels = append(p.levels, current)
	}
	return p, nil
}

func isWebMercator(crs string) bool {
	crs = strings.TrimSpace(crs)
	return crs == "" || strings.EqualFold(crs, raster.WebMercator)
}

// normalize checks keys and tile shapes and returns a copy of layer with
// complete metadata at zoom.
func normalize(layer *raster.Layer, zoom int) (*raster.Layer, error) {
	md := layer.Metadata
	md.Zoom = zoom
	md.CRS = raster.WebMercator

	out := raster.NewLayer(md)
	for k, shards := range layer.Tiles {
		if k.Col < 0 || k.Row < 0 {
			return nil, tmserr.Configf("negative spatial key %v", k)
		}
		for _, t := range shards {
			if t == nil || t.BandCount() == 0 {
				return nil, tmserr.Configf("empty tile at %v", k)
			}
			if md.TileCols == 0 {
				md.TileCols, md.TileRows, md.CellType = t.Cols(), t.Rows(), t.Band(0).CellType
			}
			if t.Cols() != md.TileCols || t.Rows() != md.TileRows {
				return nil, tmserr.Configf("tile at %v is %dx%d, layout expects %dx%d", k, t.Cols(), t.Rows(), md.TileCols, md.TileRows)
			}
			out.Add(k, t)
		}
	}
	// Declared bounds may be wider than the stored keys; keep them and
	// widen to cover every key.
	keys := out.Keys()
	if md.Bounds != (raster.Bounds{}) {
		if err := md.Bounds.Validate(); err != nil {
			return nil, tmserr.Configf("%v", err)
		}
		keys = append(keys, md.Bounds.MinKey, md.Bounds.MaxKey)
	}
	if b, ok := raster.BoundsOf(keys); ok {
		md.Bounds = b
	}
	out.Metadata = md
	return out, nil
}

// downsample folds child into the next lower zoom. Each parent tile covers
// the 2x2 block of children sharing its maptile parent.
func downsample(ctx context.Context, child *raster.Layer, method ResampleMethod, workers int) (*raster.Layer, error) {
	md := child.Metadata
	if md.Zoom <= 0 {
		return nil, tmserr.Configf("cannot downsample below zoom 0")
	}

	parents := make(map[raster.SpatialKey]struct{})
	for k := range child.Tiles {
		t := maptile.New(uint32(k.Col), uint32(k.Row), maptile.Zoom(md.Zoom)).Parent()
		parents[raster.SpatialKey{Col: int(t.X), Row: int(t.Y)}] = struct{}{}
	}

	pmd := md
	pmd.Zoom = md.Zoom - 1
	out := raster.NewLayer(pmd)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for pk := range parents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tile, err := resampleParent(child, pk, method)
			if err != nil {
				return fmt.Errorf("zoom %d tile %v: %w", pmd.Zoom, pk, err)
			}
			mu.Lock()
			out.Add(pk, tile)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keys := out.Keys()
	if md.Bounds != (raster.Bounds{}) {
		keys = append(keys,
			raster.SpatialKey{Col: md.Bounds.MinKey.Col / 2, Row: md.Bounds.MinKey.Row / 2},
			raster.SpatialKey{Col: md.Bounds.MaxKey.Col / 2, Row: md.Bounds.MaxKey.Row / 2})
	}
	if b, ok := raster.BoundsOf(keys); ok {
		out.Metadata.Bounds = b
	}
	return out, nil
}

// template returns the first shard of any child under parent, which fixes
// the band count, cell types and no-data values of the parent tile.
func template(child *raster.Layer, parent raster.SpatialKey) *raster.MultibandTile {
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			k := raster.SpatialKey{Col: parent.Col*2 + dx, Row: parent.Row*2 + dy}
			if shards := child.Tiles[k]; len(shards) > 0 {
				return shards[0]
			}
		}
	}
	return nil
}

func resampleParent(child *raster.Layer, parent raster.SpatialKey, method ResampleMethod) (*raster.MultibandTile, error) {
	tmpl := template(child, parent)
	if tmpl == nil {
		return nil, fmt.Errorf("no child tiles")
	}
	cols, rows := child.Metadata.TileCols, child.Metadata.TileRows

	// sample reads mosaic cell (x, y) of the 2x2 child block, reaching into
	// neighbouring children when x or y fall outside it.
	sample := func(b, x, y int) (float64, bool) {
		k := raster.SpatialKey{
			Col: parent.Col*2 + floorDiv(x, cols),
			Row: parent.Row*2 + floorDiv(y, rows),
		}
		shards := child.Tiles[k]
		if len(shards) == 0 || b >= shards[0].BandCount() {
			return 0, false
		}
		band := shards[0].Band(b)
		v := band.Get(floorMod(x, cols), floorMod(y, rows))
		if band.IsNoData(v) {
			return 0, false
		}
		return v, true
	}

	bands := make([]raster.Tile, tmpl.BandCount())
	for b := range bands {
		src := tmpl.Band(b)
		dst := raster.NewTile(cols, rows, src.CellType)
		if src.NoData != nil {
			nd := *src.NoData
			dst.NoData = &nd
		}
		fill := fillValue(dst)

		for pr := 0; pr < rows; pr++ {
			for pc := 0; pc < cols; pc++ {
				var (
					v  float64
					ok bool
				)
				if method.usesKernel() {
					var vals [16]float64
					var valid [16]bool
					for j := 0; j < 4; j++ {
						for i := 0; i < 4; i++ {
							vals[j*4+i], valid[j*4+i] = sample(b, 2*pc-1+i, 2*pr-1+j)
						}
					}
					v, ok = method.reduceKernel(vals, valid)
				} else {
					var vals [4]float64
					var valid [4]bool
					for j := 0; j < 2; j++ {
						for i := 0; i < 2; i++ {
							vals[j*2+i], valid[j*2+i] = sample(b, 2*pc+i, 2*pr+j)
						}
					}
					v, ok = method.reduce2x2(vals, valid)
				}

				switch {
				case !ok:
					v = fill
				case !dst.CellType.IsFloat():
					v = math.Round(v)
				}
				dst.Set(pc, pr, v)
			}
		}
		bands[b] = dst
	}
	return raster.NewMultibandTile(bands...)
}

func fillValue(t raster.Tile) float64 {
	switch {
	case t.NoData != nil:
		return *t.NoData
	case t.CellType.IsFloat():
		return math.NaN()
	default:
		return 0
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// StartZoom is the zoom of level 0, the highest resolution.
func (p *Pyramid) StartZoom() int { return p.startZoom }

// EndZoom is the zoom of the last level.
func (p *Pyramid) EndZoom() int { return p.endZoom }

// MaxZoom is an alias of StartZoom.
func (p *Pyramid) MaxZoom() int { return p.startZoom }

// Levels returns the layers ordered from StartZoom down to EndZoom.
func (p *Pyramid) Levels() []*raster.Layer { return p.levels }

// Level returns the layer at zoom.
func (p *Pyramid) Level(zoom int) (*raster.Layer, error) {
	idx := p.startZoom - zoom
	if idx < 0 || idx >= len(p.levels) {
		return nil, &tmserr.RangeError{Axis: tmserr.AxisZoom, Value: zoom, Min: p.endZoom, Max: p.startZoom}
	}
	return p.levels[idx], nil
}

// SetPersist records a new storage hint. Unknown levels are rejected.
func (p *Pyramid) SetPersist(level StorageLevel) error {
	if err := checkStorageLevel(level); err != nil {
		return err
	}
	p.mu.Lock()
	p.persist = level
	p.mu.Unlock()
	return nil
}

// Persisted returns the recorded storage hint.
func (p *Pyramid) Persisted() StorageLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.persist == "" {
		return StorageNone
	}
	return p.persist
}
