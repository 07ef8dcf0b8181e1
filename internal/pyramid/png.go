package pyramid

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/render"
	"github.com/geotms/server/internal/tmserr"
	"github.com/geotms/server/pkg/colormap"
)

type pngLevel struct {
	zoom   int
	bounds raster.Bounds
	tiles  map[raster.SpatialKey][][]byte
}

// PNGPyramid is a pyramid whose levels were rendered to PNG up front.
type PNGPyramid struct {
	levels  []pngLevel
	maxZoom int

	mu      sync.RWMutex
	persist StorageLevel
}

// NewPNGPyramid renders band 0 of every shard of p through cm. A nil
// renderer paints one pixel per cell.
func NewPNGPyramid(ctx context.Context, p *Pyramid, cm *colormap.ColorMap, r *render.TileRenderer) (*PNGPyramid, error) {
	if p == nil || cm == nil {
		return nil, tmserr.Configf("pyramid and color map are required")
	}
	if r == nil {
		r = render.NewTileRenderer(render.Config{})
	}

	out := &PNGPyramid{
		levels:  make([]pngLevel, len(p.levels)),
		maxZoom: p.startZoom,
		persist: p.Persisted(),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, layer := range p.levels {
		out.levels[i] = pngLevel{
			zoom:   layer.Metadata.Zoom,
			bounds: layer.Metadata.Bounds,
			tiles:  make(map[raster.SpatialKey][][]byte, len(layer.Tiles)),
		}
		for k, shards := range layer.Tiles {
			lvl := &out.levels[i]
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				images := make([][]byte, 0, len(shards))
				for _, t := range shards {
					data, err := r.RenderColorMap(t, cm)
					if err != nil {
						return fmt.Errorf("render zoom %d tile %v: %w", lvl.zoom, k, err)
					}
					images = append(images, data)
				}
				mu.Lock()
				lvl.tiles[k] = images
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MakePNGPyramid validates opts, builds the pyramid and renders it with the
// named ramp. Colors are placed at quantile breaks of the start level.
func MakePNGPyramid(ctx context.Context, layer *raster.Layer, rampName string, opts Options) (*PNGPyramid, error) {
	if opts.Resample != "" && !opts.Resample.Valid() {
		return nil, tmserr.Configf("%q is not a known resample method", string(opts.Resample))
	}
	if err := checkStorageLevel(opts.Persist); err != nil {
		return nil, err
	}
	if _, err := colormap.Lookup(rampName); err != nil {
		return nil, tmserr.Configf("%v", err)
	}

	p, err := Build(ctx, layer, opts)
	if err != nil {
		return nil, err
	}
	cm, err := colormap.FromQuantileBreaks(rampName, levelValues(p.levels[0]), 0)
	if err != nil {
		return nil, err
	}
	return NewPNGPyramid(ctx, p, cm, nil)
}

// levelValues collects the valid band 0 cells of layer.
func levelValues(layer *raster.Layer) []float64 {
	var values []float64
	for _, shards := range layer.Tiles {
		for _, t := range shards {
			band := t.Band(0)
			for _, v := range band.Cells {
				if !band.IsNoData(v) {
					values = append(values, v)
				}
			}
		}
	}
	return values
}

// MaxZoom is the zoom of level 0.
func (p *PNGPyramid) MaxZoom() int { return p.maxZoom }

// Lookup returns every PNG stored under (col, row). A nil zoom means the
// finest level. Zoom, column and row are range checked in that order
// before the level is read.
func (p *PNGPyramid) Lookup(col, row int, zoom *int) ([][]byte, error) {
	idx := 0
	if zoom != nil {
		idx = p.maxZoom - *zoom
	}
	if idx < 0 || idx >= len(p.levels) {
		z := p.maxZoom - idx
		return nil, &tmserr.RangeError{Axis: tmserr.AxisZoom, Value: z, Min: p.maxZoom - len(p.levels) + 1, Max: p.maxZoom}
	}

	lvl := p.levels[idx]
	b := lvl.bounds
	if col < b.MinKey.Col || col > b.MaxKey.Col {
		return nil, &tmserr.RangeError{Axis: tmserr.AxisColumn, Value: col, Min: b.MinKey.Col, Max: b.MaxKey.Col}
	}
	if row < b.MinKey.Row || row > b.MaxKey.Row {
		return nil, &tmserr.RangeError{Axis: tmserr.AxisRow, Value: row, Min: b.MinKey.Row, Max: b.MaxKey.Row}
	}

	images := lvl.tiles[raster.SpatialKey{Col: col, Row: row}]
	if images == nil {
		return [][]byte{}, nil
	}
	return images, nil
}

// SetPersist records a new storage hint. Unknown levels are rejected.
func (p *PNGPyramid) SetPersist(level StorageLevel) error {
	if err := checkStorageLevel(level); err != nil {
		return err
	}
	p.mu.Lock()
	p.persist = level
	p.mu.Unlock()
	return nil
}

// Persisted returns the recorded storage hint.
func (p *PNGPyramid) Persisted() StorageLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.persist == "" {
		return StorageNone
	}
	return p.persist
}
