// Package catalog stores encoded raster tiles keyed by layer name, zoom,
// column and row. Backends are chosen by URI scheme.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/geotms/server/internal/codec"
	"github.com/geotms/server/internal/raster"
)

var (
	// ErrTileNotFound reports a key with no stored tile.
	ErrTileNotFound = errors.New("catalog: tile not found")
	// ErrUnsupported indicates this binary was built without the backend
	// the URI asks for.
	ErrUnsupported = errors.New("catalog: backend not enabled in this build")
)

// Catalog reads and writes codec-encoded tiles.
type Catalog interface {
	// Get returns the stored bytes or an error wrapping ErrTileNotFound.
	Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error)
	// Put stores data, replacing any previous tile under the key.
	Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error
	Close() error
}

// Open resolves uri to a backend:
//
//	sqlite://path/to/tiles.db   SQLite database
//	tiledb://path/to/group      TileDB sparse arrays, one per layer
//	zarr://path/to/store        Zarr v3 arrays, read-only
//	file://, mem://, s3://, gs://, azblob://   gocloud blob bucket
func Open(ctx context.Context, uri string) (Catalog, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("empty catalog uri")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog uri %q: %w", uri, err)
	}
	switch u.Scheme {
	case "sqlite":
		return OpenSQLite(strings.TrimPrefix(uri, "sqlite://"))
	case "tiledb":
		return OpenTileDB(strings.TrimPrefix(uri, "tiledb://"))
	case "zarr":
		return OpenZarr(strings.TrimPrefix(uri, "zarr://"))
	case "":
		return nil, fmt.Errorf("catalog uri %q has no scheme", uri)
	default:
		return OpenBlob(ctx, uri)
	}
}

// Read fetches and decodes one tile.
func Read(ctx context.Context, c Catalog, layer string, zoom, col, row int) (*raster.MultibandTile, error) {
	data, err := c.Get(ctx, layer, zoom, col, row)
	if err != nil {
		return nil, err
	}
	tile, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%d/%d/%d: %w", layer, zoom, col, row, err)
	}
	return tile, nil
}

// WriteLayer encodes the first shard of every key in l and stores it
// under name at the layer's zoom. It returns the number of tiles written.
func WriteLayer(ctx context.Context, c Catalog, name string, l *raster.Layer) (int, error) {
	n := 0
	for k, shards := range l.Tiles {
		if len(shards) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data, err := codec.EncodeCompressed(shards[0])
		if err != nil {
			return n, fmt.Errorf("encode %v: %w", k, err)
		}
		if err := c.Put(ctx, name, l.Metadata.Zoom, k.Col, k.Row, data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func validKey(layer string, zoom, col, row int) error {
	if layer == "" {
		return errors.New("empty layer name")
	}
	if zoom < 0 || col < 0 || row < 0 {
		return fmt.Errorf("%w: negative key %d/%d/%d", ErrTileNotFound, zoom, col, row)
	}
	return nil
}
