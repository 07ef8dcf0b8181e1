//go:build !tiledb

package catalog

import (
	"context"
	"fmt"
	"os"
)

// TileDBCatalog is a stub when built without "-tags tiledb".
type TileDBCatalog struct {
	root string
}

// OpenTileDB still checks the catalog directory so config issues surface
// early, but every read and write returns ErrUnsupported.
func OpenTileDB(root string) (*TileDBCatalog, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("tiledb catalog not found at %s: %w", root, err)
	}
	return &TileDBCatalog{root: root}, nil
}

func (c *TileDBCatalog) Supported() bool { return false }

func (c *TileDBCatalog) Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (c *TileDBCatalog) Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error {
	return ErrUnsupported
}

func (c *TileDBCatalog) Close() error { return nil }
