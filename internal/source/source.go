// Package source resolves tile source descriptions into queryable
// providers of raw cell data.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/geotms/server/internal/cache"
	"github.com/geotms/server/internal/catalog"
	"github.com/geotms/server/internal/codec"
	"github.com/geotms/server/internal/pyramid"
	"github.com/geotms/server/internal/raster"
	"github.com/geotms/server/internal/tmserr"
)

// ErrNotFound is returned, wrapped, when a source has no tile for a key.
var ErrNotFound = tmserr.ErrNotFound

// TileSource returns cell data by zoom and key.
type TileSource interface {
	Fetch(ctx context.Context, zoom, col, row int) (*raster.MultibandTile, error)
	// Name identifies the source in logs and cache keys.
	Name() string
	Close() error
}

// Kind tags a Spec.
type Kind int

const (
	KindPyramid Kind = iota + 1
	KindCatalog
)

func (k Kind) String() string {
	switch k {
	case KindPyramid:
		return "pyramid"
	case KindCatalog:
		return "catalog"
	}
	return "unknown"
}

// Spec describes a source before it is opened. Build one with FromPyramid
// or FromCatalog.
type Spec struct {
	kind    Kind
	pyramid *pyramid.Pyramid
	uri     string
	layer   string
}

// FromPyramid describes an in-memory pyramid.
func FromPyramid(p *pyramid.Pyramid) Spec {
	return Spec{kind: KindPyramid, pyramid: p}
}

// FromCatalog describes a layer stored in the catalog at uri.
func FromCatalog(uri, layer string) Spec {
	return Spec{kind: KindCatalog, uri: uri, layer: layer}
}

// Kind reports which variant s is.
func (s Spec) Kind() Kind { return s.kind }

func (s Spec) String() string {
	switch s.kind {
	case KindPyramid:
		return "pyramid"
	case KindCatalog:
		return s.uri + "#" + s.layer
	}
	return "invalid source"
}

// Options tunes Open.
type Options struct {
	// Cache holds decoded catalog tiles. Nil disables caching.
	Cache *cache.Manager
	// Catalog is used instead of opening the spec's URI. The caller keeps
	// ownership.
	Catalog catalog.Catalog
}

// Open resolves spec once.
func Open(ctx context.Context, spec Spec, opts Options) (TileSource, error) {
	switch spec.kind {
	case KindPyramid:
		if spec.pyramid == nil {
			return nil, tmserr.Configf("pyramid source has no pyramid")
		}
		return &PyramidSource{pyramid: spec.pyramid}, nil
	case KindCatalog:
		if spec.layer == "" {
			return nil, tmserr.Configf("catalog source %q has no layer", spec.uri)
		}
		c, owned := opts.Catalog, false
		if c == nil {
			var err error
			if c, err = catalog.Open(ctx, spec.uri); err != nil {
				return nil, fmt.Errorf("open catalog %s: %w", spec.uri, err)
			}
			owned = true
		}
		return &CatalogSource{catalog: c, owned: owned, uri: spec.uri, layer: spec.layer, cache: opts.Cache}, nil
	}
	return nil, tmserr.Configf("source spec has no variant")
}

// PyramidSource serves the first shard stored under a key.
type PyramidSource struct {
	pyramid *pyramid.Pyramid
}

func (s *PyramidSource) Name() string { return "pyramid" }

// Fetch maps every range failure to ErrNotFound.
func (s *PyramidSource) Fetch(ctx context.Context, zoom, col, row int) (*raster.MultibandTile, error) {
	level, err := s.pyramid.Level(zoom)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	k := raster.SpatialKey{Col: col, Row: row}
	if !level.Metadata.Bounds.Contains(k) {
		return nil, fmt.Errorf("%w: key %v outside zoom %d", ErrNotFound, k, zoom)
	}
	shards := level.Lookup(k)
	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: no tile at %d/%d/%d", ErrNotFound, zoom, col, row)
	}
	return shards[0], nil
}

func (s *PyramidSource) Close() error { return nil }

// CatalogSource queries a catalog layer on demand.
type CatalogSource struct {
	catalog catalog.Catalog
	owned   bool
	uri     string
	layer   string
	cache   *cache.Manager
}

func (s *CatalogSource) Name() string { return s.uri + "#" + s.layer }

func (s *CatalogSource) Fetch(ctx context.Context, zoom, col, row int) (*raster.MultibandTile, error) {
	key := cache.SourceKey(s.uri, s.layer, zoom, col, row)
	if tile, ok := s.cache.GetSource(key); ok {
		return tile, nil
	}

	data, err := s.catalog.Get(ctx, s.layer, zoom, col, row)
	if errors.Is(err, catalog.ErrTileNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	tile, err := codec.Decode(data)
	if err != nil {
		return nil, &tmserr.RenderError{Err: fmt.Errorf("decode %s/%d/%d/%d: %w", s.layer, zoom, col, row, err)}
	}
	s.cache.SetSource(key, tile)
	return tile, nil
}

// Close closes the catalog if Open created it.
func (s *CatalogSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.catalog.Close()
}
