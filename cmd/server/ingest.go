package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/geotms/server/internal/catalog"
	"github.com/geotms/server/internal/codec"
	"github.com/geotms/server/internal/pyramid"
	"github.com/geotms/server/internal/raster"
)

type ingestOptions struct {
	Catalog  string
	Layer    string
	Dir      string
	Zoom     int
	CRS      string
	Pyramid  bool
	EndZoom  int
	Resample string
	Persist  string
	// CellType, when set, rejects input tiles of any other cell type.
	CellType string
}

// ingest loads {col}_{row}.tile files from opts.Dir as one layer at
// opts.Zoom and writes it, plus its pyramid when requested, into the
// catalog. It returns the number of tiles written.
func ingest(ctx context.Context, opts ingestOptions) (int, error) {
	var want *raster.CellType
	if opts.CellType != "" {
		ct, err := raster.ParseCellType(opts.CellType)
		if err != nil {
			return 0, err
		}
		want = &ct
	}
	layer, err := readLayer(opts.Dir, raster.LayerMetadata{Zoom: opts.Zoom, CRS: opts.CRS}, want)
	if err != nil {
		return 0, err
	}

	levels := []*raster.Layer{layer}
	if opts.Pyramid {
		method, err := pyramid.ParseResampleMethod(opts.Resample)
		if err != nil {
			return 0, err
		}
		persist, err := pyramid.ParseStorageLevel(opts.Persist)
		if err != nil {
			return 0, err
		}
		p, err := pyramid.Build(ctx, layer, pyramid.Options{EndZoom: opts.EndZoom, Resample: method, Persist: persist})
		if err != nil {
			return 0, fmt.Errorf("failed to build pyramid: %w", err)
		}
		level := p.Persisted()
		log.Printf("Built pyramid %d..%d with %s resampling, storage %s (replicated=%t, serialized=%t)",
			p.StartZoom(), p.EndZoom(), method, level, level.Replicated(), level.Serialized())
		levels = p.Levels()
	}

	c, err := catalog.Open(ctx, opts.Catalog)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	total := 0
	for _, l := range levels {
		n, err := catalog.WriteLayer(ctx, c, opts.Layer, l)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to write zoom %d: %w", l.Metadata.Zoom, err)
		}
	}
	return total, nil
}

func readLayer(dir string, md raster.LayerMetadata, want *raster.CellType) (*raster.Layer, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tile"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .tile files in %s", dir)
	}

	layer := raster.NewLayer(md)
	for _, p := range paths {
		key, err := tileKey(filepath.Base(p))
		if err != nil {
			return nil, fmt.Errorf("tile file %s: %w", p, err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		tile, err := codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", p, err)
		}
		if want != nil {
			for i, b := range tile.Bands {
				if b.CellType != *want {
					return nil, fmt.Errorf("tile file %s band %d is %s, expected %s", p, i, b.CellType, *want)
				}
			}
		}
		layer.Add(key, tile)
	}
	return layer, nil
}

// tileKey parses a file name of the form {col}_{row}.tile.
func tileKey(name string) (raster.SpatialKey, error) {
	parts := strings.Split(strings.TrimSuffix(name, ".tile"), "_")
	if len(parts) != 2 {
		return raster.SpatialKey{}, fmt.Errorf("%q is not named {col}_{row}.tile", name)
	}
	col, err := strconv.Atoi(parts[0])
	if err != nil {
		return raster.SpatialKey{}, fmt.Errorf("%q is not named {col}_{row}.tile", name)
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil {
		return raster.SpatialKey{}, fmt.Errorf("%q is not named {col}_{row}.tile", name)
	}
	return raster.SpatialKey{Col: col, Row: row}, nil
}
