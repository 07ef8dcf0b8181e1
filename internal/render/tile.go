// Package render paints raster tiles into PNG images using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	// TileSize is the output edge in pixels. Zero renders one pixel per cell.
	TileSize int
}

// TileRenderer renders cell grids to PNG.
type TileRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	r := &TileRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
	if cfg.TileSize > 0 {
		r.contextPool.New = func() interface{} {
			return gg.NewContext(cfg.TileSize, cfg.TileSize)
		}
	}
	return r
}

// TileSize returns the configured output size, zero meaning cell-sized.
func (r *TileRenderer) TileSize() int {
	return r.config.TileSize
}

func (r *TileRenderer) context(cols, rows int) (*gg.Context, func()) {
	if r.config.TileSize <= 0 {
		return gg.NewContext(cols, rows), func() {}
	}
	dc := r.contextPool.Get().(*gg.Context)
	return dc, func() { r.contextPool.Put(dc) }
}

// RenderColorMap paints band 0 of tile through cm.
func (r *TileRenderer) RenderColorMap(tile *raster.MultibandTile, cm *colormap.ColorMap) ([]byte, error) {
	if tile == nil || tile.BandCount() == 0 {
		return nil, fmt.Errorf("no bands to render")
	}
	band := tile.Band(0)
	if band.Cols == 0 || band.Rows == 0 {
		return r.CreateEmptyTile()
	}

	dc, release := r.context(band.Cols, band.Rows)
	defer release()

	dc.SetColor(color.Transparent)
	dc.Clear()

	width := float64(dc.Width())
	height := float64(dc.Height())
	cellW := width / float64(band.Cols)
	cellH := height / float64(band.Rows)

	for row := 0; row < band.Rows; row++ {
		for col := 0; col < band.Cols; col++ {
			v := band.Get(col, row)
			var c color.RGBA
			if band.IsNoData(v) {
				c = cm.NoData()
			} else {
				c = cm.Map(v)
			}
			if c.A == 0 {
				continue
			}
			dc.SetColor(c)
			dc.DrawRectangle(float64(col)*cellW, float64(row)*cellH, cellW, cellH)
			dc.Fill()
		}
	}

	return r.Encode(dc.Image())
}

// Encode PNG-encodes img with the fast encoder.
func (r *TileRenderer) Encode(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptyTile creates an empty transparent tile.
func (r *TileRenderer) CreateEmptyTile() ([]byte, error) {
	size := r.config.TileSize
	if size <= 0 {
		size = 256
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	return r.Encode(img)
}

var defaultRenderer = NewTileRenderer(Config{})

// EncodePNG encodes img with a shared renderer's pooled buffers.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to encode")
	}
	return defaultRenderer.Encode(img)
}

// RenderRGB paints three channels stretched linearly from [minV, maxV] to
// 0..255. Three tiles contribute band 0 each; a single tile with at least
// three bands contributes bands 0, 1 and 2. Cells that are no-data in any
// channel stay transparent.
func (r *TileRenderer) RenderRGB(tiles []*raster.MultibandTile, minV, maxV float64) ([]byte, error) {
	channels, err := rgbChannels(tiles)
	if err != nil {
		return nil, err
	}
	if maxV <= minV {
		return nil, fmt.Errorf("invalid stretch [%g, %g]", minV, maxV)
	}

	cols, rows := channels[0].Cols, channels[0].Rows
	for _, ch := range channels[1:] {
		cols, rows = min(cols, ch.Cols), min(rows, ch.Rows)
	}
	if cols == 0 || rows == 0 {
		return r.CreateEmptyTile()
	}

	dc, release := r.context(cols, rows)
	defer release()

	dc.SetColor(color.Transparent)
	dc.Clear()

	cellW := float64(dc.Width()) / float64(cols)
	cellH := float64(dc.Height()) / float64(rows)

	for row := 0; row < rows; row++ {
	cells:
		for col := 0; col < cols; col++ {
			var rgb [3]uint8
			for i, ch := range channels {
				v := ch.Get(col, row)
				if ch.IsNoData(v) {
					continue cells
				}
				rgb[i] = stretch(v, minV, maxV)
			}
			dc.SetColor(color.RGBA{rgb[0], rgb[1], rgb[2], 0xff})
			dc.DrawRectangle(float64(col)*cellW, float64(row)*cellH, cellW, cellH)
			dc.Fill()
		}
	}

	return r.Encode(dc.Image())
}

func rgbChannels(tiles []*raster.MultibandTile) ([3]raster.Tile, error) {
	var out [3]raster.Tile
	switch {
	case len(tiles) == 3:
		for i, t := range tiles {
			if t == nil || t.BandCount() == 0 {
				return out, fmt.Errorf("channel %d has no bands", i)
			}
			out[i] = t.Band(0)
		}
	case len(tiles) == 1 && tiles[0] != nil && tiles[0].BandCount() >= 3:
		for i := range out {
			out[i] = tiles[0].Band(i)
		}
	default:
		return out, fmt.Errorf("rgb needs three single-band tiles or one tile with three bands, got %d tiles", len(tiles))
	}
	return out, nil
}

func stretch(v, minV, maxV float64) uint8 {
	t := (v - minV) / (maxV - minV)
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 0xff
	}
	return uint8(t*255 + 0.5)
}
