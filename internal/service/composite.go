package service

import (
	"context"

	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/render"
)

// RGBComposite returns a CompositeFunc that maps three sources (or one
// three-band source) to red, green and blue, stretching [minV, maxV] to
// the full channel range. A nil renderer draws 256px tiles.
func RGBComposite(r *render.TileRenderer, minV, maxV float64) CompositeFunc {
	if r == nil {
		r = render.NewTileRenderer(render.Config{TileSize: 256})
	}
	return func(_ context.Context, tiles []*raster.MultibandTile) ([]byte, error) {
		return r.RenderRGB(tiles, minV, maxV)
	}
}
