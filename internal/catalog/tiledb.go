//go:build tiledb

package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// TileDBCatalog stores each layer as a sparse array under root with int32
// dimensions zoom, col and row and a variable-length uint8 attribute data.
type TileDBCatalog struct {
	root string
	ctx  *tiledb.Context

	writeMu sync.Mutex // serializes Put
}

func OpenTileDB(root string) (*TileDBCatalog, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tiledb catalog at %s: %w", root, err)
	}
	ctx, err := tiledb.NewContext(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create TileDB context: %w", err)
	}
	return &TileDBCatalog{root: root, ctx: ctx}, nil
}

func (c *TileDBCatalog) Supported() bool { return true }

func (c *TileDBCatalog) arrayURI(layer string) string {
	return filepath.Join(c.root, layer)
}

func (c *TileDBCatalog) Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error) {
	if err := validKey(layer, zoom, col, row); err != nil {
		return nil, err
	}
	uri := c.arrayURI(layer)
	if _, err := os.Stat(uri); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: layer %s", ErrTileNotFound, layer)
	}

	arr, err := tiledb.NewArray(c.ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open tile array (%s): %w", uri, err)
	}
	defer arr.Free()
	if err := arr.Open(tiledb.TILEDB_READ); err != nil {
		return nil, fmt.Errorf("failed to open tile array for read: %w", err)
	}
	defer arr.Close()

	sub, err := arr.NewSubarray()
	if err != nil {
		return nil, fmt.Errorf("failed to create subarray: %w", err)
	}
	defer sub.Free()
	for name, v := range map[string]int32{"zoom": int32(zoom), "col": int32(col), "row": int32(row)} {
		if err := sub.AddRangeByName(name, tiledb.MakeRange[int32](v, v)); err != nil {
			return nil, fmt.Errorf("failed to add %s range: %w", name, err)
		}
	}

	q, err := tiledb.NewQuery(c.ctx, arr)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer q.Free()
	if err := q.SetSubarray(sub); err != nil {
		return nil, fmt.Errorf("failed to set subarray: %w", err)
	}
	_ = q.SetLayout(tiledb.TILEDB_UNORDERED)

	offsets := make([]uint64, 1)
	data := make([]byte, 256*1024)
	for {
		if _, err := q.SetOffsetsBuffer("data", offsets); err != nil {
			return nil, fmt.Errorf("failed to set offsets buffer data: %w", err)
		}
		if _, err := q.SetDataBuffer("data", data); err != nil {
			return nil, fmt.Errorf("failed to set data buffer data: %w", err)
		}
		if err := q.Submit(); err != nil {
			return nil, fmt.Errorf("query submit failed: %w", err)
		}
		status, err := q.Status()
		if err != nil {
			return nil, fmt.Errorf("query status failed: %w", err)
		}
		elems, err := q.ResultBufferElements()
		if err != nil {
			return nil, fmt.Errorf("failed to get result buffer elements: %w", err)
		}
		used := int(elems["data"][1])

		// Buffer too small for the tile: grow and retry.
		if status == tiledb.TILEDB_INCOMPLETE && used == 0 {
			if len(data) >= 64*1024*1024 {
				return nil, fmt.Errorf("tile %s/%d/%d/%d exceeds %d bytes", layer, zoom, col, row, len(data))
			}
			data = make([]byte, len(data)*2)
			continue
		}
		if status != tiledb.TILEDB_COMPLETED && status != tiledb.TILEDB_INCOMPLETE {
			return nil, fmt.Errorf("unexpected query status: %v", status)
		}
		if int(elems["data"][0]) == 0 {
			return nil, fmt.Errorf("%w: %s/%d/%d/%d", ErrTileNotFound, layer, zoom, col, row)
		}
		out := make([]byte, min(used, len(data)))
		copy(out, data)
		return out, nil
	}
}

func (c *TileDBCatalog) Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error {
	if err := validKey(layer, zoom, col, row); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	uri := c.arrayURI(layer)
	if _, err := os.Stat(uri); os.IsNotExist(err) {
		if err := c.createArray(uri); err != nil {
			return err
		}
	}

	arr, err := tiledb.NewArray(c.ctx, uri)
	if err != nil {
		return fmt.Errorf("failed to open tile array (%s): %w", uri, err)
	}
	defer arr.Free()
	if err := arr.Open(tiledb.TILEDB_WRITE); err != nil {
		return fmt.Errorf("failed to open tile array for write: %w", err)
	}
	defer arr.Close()

	q, err := tiledb.NewQuery(c.ctx, arr)
	if err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}
	defer q.Free()
	if err := q.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return fmt.Errorf("failed to set write layout: %w", err)
	}

	for name, v := range map[string][]int32{"zoom": {int32(zoom)}, "col": {int32(col)}, "row": {int32(row)}} {
		if _, err := q.SetDataBuffer(name, v); err != nil {
			return fmt.Errorf("failed to set buffer %s: %w", name, err)
		}
	}
	if _, err := q.SetOffsetsBuffer("data", []uint64{0}); err != nil {
		return fmt.Errorf("failed to set offsets buffer data: %w", err)
	}
	if _, err := q.SetDataBuffer("data", data); err != nil {
		return fmt.Errorf("failed to set data buffer data: %w", err)
	}
	if err := q.Submit(); err != nil {
		return fmt.Errorf("write submit failed: %w", err)
	}
	return q.Finalize()
}

func (c *TileDBCatalog) createArray(uri string) error {
	domain, err := tiledb.NewDomain(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	defer domain.Free()

	for _, name := range []string{"zoom", "col", "row"} {
		dim, err := tiledb.NewDimension(c.ctx, name, tiledb.TILEDB_INT32, []int32{0, 1 << 30}, int32(64))
		if err != nil {
			return fmt.Errorf("failed to create dimension %s: %w", name, err)
		}
		defer dim.Free()
		if err := domain.AddDimensions(dim); err != nil {
			return fmt.Errorf("failed to add dimension %s: %w", name, err)
		}
	}

	schema, err := tiledb.NewArraySchema(c.ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	defer schema.Free()
	if err := schema.SetDomain(domain); err != nil {
		return fmt.Errorf("failed to set domain: %w", err)
	}

	attr, err := tiledb.NewAttribute(c.ctx, "data", tiledb.TILEDB_UINT8)
	if err != nil {
		return fmt.Errorf("failed to create data attribute: %w", err)
	}
	defer attr.Free()
	if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
		return fmt.Errorf("failed to make data variable length: %w", err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		return fmt.Errorf("failed to add data attribute: %w", err)
	}
	// Rewrites of a key replace the previous cell on read.
	if err := schema.SetAllowsDups(false); err != nil {
		return fmt.Errorf("failed to disable duplicates: %w", err)
	}

	arr, err := tiledb.NewArray(c.ctx, uri)
	if err != nil {
		return fmt.Errorf("failed to create tile array (%s): %w", uri, err)
	}
	defer arr.Free()
	if err := arr.Create(schema); err != nil {
		return fmt.Errorf("failed to create tile array (%s): %w", uri, err)
	}
	return nil
}

func (c *TileDBCatalog) Close() error {
	c.ctx.Free()
	return nil
}
