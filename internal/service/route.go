// Package service turns tile requests into images: it fetches cell data
// from every source of a route and hands it to the route's display method.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geotms/server/internal/cache"
	"github.com/geotms/server/internal/callback"
	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/render"
	"github.com/geotms/server/internal/source"
	"github.com/geotms/server/internal/tmserr"
	"github.com/geotms/server/pkg/colormap"
)

// RenderFunc turns one source tile into an encoded image.
type RenderFunc func(ctx context.Context, tile *raster.MultibandTile) ([]byte, error)

// CompositeFunc turns the tiles of every source, in registration order,
// into an encoded image.
type CompositeFunc func(ctx context.Context, tiles []*raster.MultibandTile) ([]byte, error)

// Display is one of ColorMapDisplay, RenderDisplay or CompositeDisplay.
type Display interface {
	display()
}

// ColorMapDisplay paints band 0 of a single source through Map.
type ColorMapDisplay struct {
	Map *colormap.ColorMap
}

// RenderDisplay calls Fn with the tile of a single source.
type RenderDisplay struct {
	Fn RenderFunc
}

// CompositeDisplay calls Fn with the tiles of all sources.
type CompositeDisplay struct {
	Fn CompositeFunc
}

func (ColorMapDisplay) display()  {}
func (RenderDisplay) display()    {}
func (CompositeDisplay) display() {}

// RenderImage adapts a function producing an image to a RenderFunc that
// PNG-encodes the result.
func RenderImage(fn func(ctx context.Context, tile *raster.MultibandTile) (image.Image, error)) RenderFunc {
	return func(ctx context.Context, tile *raster.MultibandTile) ([]byte, error) {
		img, err := fn(ctx, tile)
		if err != nil {
			return nil, err
		}
		return render.EncodePNG(img)
	}
}

// CompositeImage adapts a function producing an image to a CompositeFunc
// that PNG-encodes the result.
func CompositeImage(fn func(ctx context.Context, tiles []*raster.MultibandTile) (image.Image, error)) CompositeFunc {
	return func(ctx context.Context, tiles []*raster.MultibandTile) ([]byte, error) {
		img, err := fn(ctx, tiles)
		if err != nil {
			return nil, err
		}
		return render.EncodePNG(img)
	}
}

// RouteConfig contains route configuration.
type RouteConfig struct {
	// Name prefixes cache keys. Routes given the same name share cached
	// tiles. Empty picks a name unique to the route.
	Name     string
	Cache    *cache.Manager
	Renderer *render.TileRenderer
	Logger   *zap.Logger
	// Observe, when set, receives the duration of every display call.
	Observe func(kind string, d time.Duration)
}

// Route serves tiles for a fixed set of sources and one display method.
type Route struct {
	name     string
	sources  []source.TileSource
	display  Display
	kind     string
	cache    *cache.Manager
	renderer *render.TileRenderer
	logger   *zap.Logger
	observe  func(string, time.Duration)
}

var routeSeq atomic.Uint64

// NewRoute validates the pairing of sources and display.
func NewRoute(sources []source.TileSource, display Display, cfg RouteConfig) (*Route, error) {
	if len(sources) == 0 {
		return nil, tmserr.Configf("route needs at least one source")
	}
	for i, s := range sources {
		if s == nil {
			return nil, tmserr.Configf("source %d is nil", i)
		}
	}

	var kind string
	switch d := display.(type) {
	case ColorMapDisplay:
		if d.Map == nil {
			return nil, tmserr.Configf("color map display has no color map")
		}
		if len(sources) > 1 {
			return nil, tmserr.Configf("may only apply color maps to a single input source, got %d", len(sources))
		}
		kind = "colormap"
	case RenderDisplay:
		if d.Fn == nil {
			return nil, tmserr.Configf("render display has no function")
		}
		if len(sources) > 1 {
			return nil, tmserr.Configf("render functions take a single source, got %d; use a composite function", len(sources))
		}
		kind = "render"
	case CompositeDisplay:
		if d.Fn == nil {
			return nil, tmserr.Configf("composite display has no function")
		}
		kind = "composite"
	case nil:
		return nil, tmserr.Configf("display method must be a color map or a render function")
	default:
		return nil, tmserr.Configf("unsupported display %T", display)
	}

	name := cfg.Name
	if name == "" {
		name = "route-" + strconv.FormatUint(routeSeq.Add(1), 10)
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewTileRenderer(render.Config{TileSize: 256})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Route{
		name:     name,
		sources:  append([]source.TileSource(nil), sources...),
		display:  display,
		kind:     kind,
		cache:    cfg.Cache,
		renderer: renderer,
		logger:   logger,
		observe:  cfg.Observe,
	}, nil
}

// Name returns the cache namespace of the route.
func (r *Route) Name() string { return r.name }

// Kind returns "colormap", "render" or "composite".
func (r *Route) Kind() string { return r.kind }

// Sources returns the registered sources in order.
func (r *Route) Sources() []source.TileSource { return r.sources }

// Tile returns the encoded image for (z, x, y). A miss in any source yields
// tmserr.ErrNotFound without invoking the display method.
func (r *Route) Tile(ctx context.Context, z, x, y int) ([]byte, error) {
	cacheKey := cache.TileKey(r.name, z, x, y)
	if data, ok := r.cache.GetTile(cacheKey); ok {
		return data, nil
	}

	tiles, err := r.fetch(ctx, z, x, y)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := r.draw(ctx, tiles)
	if r.observe != nil {
		r.observe(r.kind, time.Since(start))
	}
	if err != nil {
		var re *tmserr.RenderError
		if errors.As(err, &re) {
			fields := []zap.Field{zap.String("route", r.name), zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Error(re.Err)}
			if re.Stack != nil {
				fields = append(fields, zap.ByteString("stack", re.Stack))
			}
			r.logger.Error("tile render failed", fields...)
		}
		return nil, err
	}

	if err := r.cache.SetTile(cacheKey, data); err != nil {
		r.logger.Debug("tile not cached", zap.String("key", cacheKey), zap.Error(err))
	}
	return data, nil
}

// fetch queries all sources concurrently. NotFound from any source wins
// over other failures.
func (r *Route) fetch(ctx context.Context, z, x, y int) ([]*raster.MultibandTile, error) {
	tiles := make([]*raster.MultibandTile, len(r.sources))
	errs := make([]error, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		g.Go(func() error {
			t, err := src.Fetch(gctx, z, x, y)
			if err == nil && t == nil {
				err = fmt.Errorf("%w: source %s returned no tile", tmserr.ErrNotFound, src.Name())
			}
			tiles[i], errs[i] = t, err
			return err
		})
	}
	waitErr := g.Wait()
	if waitErr == nil {
		return tiles, nil
	}

	for _, err := range errs {
		if tmserr.IsNotFound(err) {
			return nil, err
		}
	}
	for i, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("source %s: %w", r.sources[i].Name(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, waitErr
}

func (r *Route) draw(ctx context.Context, tiles []*raster.MultibandTile) ([]byte, error) {
	switch d := r.display.(type) {
	case ColorMapDisplay:
		data, err := r.renderer.RenderColorMap(tiles[0], d.Map)
		if err != nil {
			return nil, &tmserr.RenderError{Err: err}
		}
		return data, nil
	case RenderDisplay:
		return callback.Current().Invoke(ctx, r.name+"/render", func(ctx context.Context) ([]byte, error) {
			return d.Fn(ctx, tiles[0])
		})
	case CompositeDisplay:
		return callback.Current().Invoke(ctx, r.name+"/composite", func(ctx context.Context) ([]byte, error) {
			return d.Fn(ctx, tiles)
		})
	}
	return nil, tmserr.Configf("unsupported display %T", r.display)
}

// Close closes every source.
func (r *Route) Close() error {
	var errs []error
	for _, s := range r.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
