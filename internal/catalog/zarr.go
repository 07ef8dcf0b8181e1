package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/geotms/server/internal/codec"
	"github.com/geotms/server/internal/raster"
)

// ZarrCatalog reads tiles from a Zarr v3 store laid out as one 2-D array
// per layer and zoom at {root}/{layer}/{zoom}. Each chunk is one tile:
// chunk (row, col) holds tile (col, row). It is read-only.
type ZarrCatalog struct {
	root    string
	decoder *zstd.Decoder

	mu    sync.RWMutex
	metas map[string]*zarrArrayMeta
}

// zarrArrayMeta is the subset of zarr.json the catalog understands.
type zarrArrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue any `json:"fill_value"`
	Codecs    []struct {
		Name          string         `json:"name"`
		Configuration map[string]any `json:"configuration"`
	} `json:"codecs"`
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
}

// OpenZarr opens the store rooted at root.
func OpenZarr(root string) (*ZarrCatalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("zarr catalog not found at %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("zarr catalog %s is not a directory", root)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZarrCatalog{root: root, decoder: decoder, metas: make(map[string]*zarrArrayMeta)}, nil
}

func (c *ZarrCatalog) arrayPath(layer string, zoom int) string {
	return filepath.Join(c.root, layer, strconv.Itoa(zoom))
}

func (c *ZarrCatalog) meta(layer string, zoom int) (*zarrArrayMeta, error) {
	p := c.arrayPath(layer, zoom)

	c.mu.RLock()
	m, ok := c.metas[p]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	data, err := os.ReadFile(filepath.Join(p, "zarr.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no array for %s/%d", ErrTileNotFound, layer, zoom)
		}
		return nil, err
	}
	m = &zarrArrayMeta{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse %s/zarr.json: %w", p, err)
	}
	if len(m.Shape) != 2 || len(m.ChunkGrid.Configuration.ChunkShape) != 2 {
		return nil, fmt.Errorf("zarr array %s must be 2-D, got shape %v", p, m.Shape)
	}
	for _, n := range m.ChunkGrid.Configuration.ChunkShape {
		if n <= 0 {
			return nil, fmt.Errorf("zarr array %s has invalid chunk shape %v", p, m.ChunkGrid.Configuration.ChunkShape)
		}
	}
	if _, err := zarrCellType(m.DataType); err != nil {
		return nil, fmt.Errorf("zarr array %s: %w", p, err)
	}

	c.mu.Lock()
	c.metas[p] = m
	c.mu.Unlock()
	return m, nil
}

// Get returns the chunk at (row, col) re-encoded as a protobuf tile. Chunks
// absent from the store and indices past the array shape are misses.
func (c *ZarrCatalog) Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error) {
	if err := validKey(layer, zoom, col, row); err != nil {
		return nil, err
	}
	m, err := c.meta(layer, zoom)
	if err != nil {
		return nil, err
	}

	chunkRows, chunkCols := m.ChunkGrid.Configuration.ChunkShape[0], m.ChunkGrid.Configuration.ChunkShape[1]
	if row*chunkRows >= m.Shape[0] || col*chunkCols >= m.Shape[1] {
		return nil, fmt.Errorf("%w: %s/%d/%d/%d outside array shape %v", ErrTileNotFound, layer, zoom, col, row, m.Shape)
	}

	chunkPath := filepath.Join(c.arrayPath(layer, zoom), "c", encodeChunkKey(m, row, col))
	raw, err := os.ReadFile(chunkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%d/%d/%d", ErrTileNotFound, layer, zoom, col, row)
		}
		return nil, err
	}

	data, order, err := c.decodeChunk(m, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk %s: %w", chunkPath, err)
	}
	tile, err := chunkTile(m, data, order)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", chunkPath, err)
	}
	mt, err := raster.NewMultibandTile(tile)
	if err != nil {
		return nil, err
	}
	return codec.Encode(mt), nil
}

// Put is not supported; Zarr stores are written by external tooling.
func (c *ZarrCatalog) Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error {
	return ErrUnsupported
}

func (c *ZarrCatalog) Close() error {
	c.decoder.Close()
	return nil
}

func encodeChunkKey(m *zarrArrayMeta, row, col int) string {
	sep := m.ChunkKeyEncoding.Configuration.Separator
	if sep == "" {
		sep = "/"
	}
	return strconv.Itoa(row) + sep + strconv.Itoa(col)
}

// decodeChunk undoes the codec chain in reverse and reports the byte order
// of the "bytes" codec.
func (c *ZarrCatalog) decodeChunk(m *zarrArrayMeta, raw []byte) ([]byte, binary.ByteOrder, error) {
	var order binary.ByteOrder = binary.LittleEndian
	data := raw
	for i := len(m.Codecs) - 1; i >= 0; i-- {
		cd := m.Codecs[i]
		switch cd.Name {
		case "zstd":
			out, err := c.decoder.DecodeAll(data, nil)
			if err != nil {
				return nil, nil, fmt.Errorf("zstd decompress failed: %w", err)
			}
			data = out
		case "gzip":
			zr, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
			out, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
			data = out
		case "bytes":
			if e, _ := cd.Configuration["endian"].(string); e == "big" {
				order = binary.BigEndian
			}
		case "crc32c":
			if len(data) < 4 {
				return nil, nil, fmt.Errorf("chunk too short for crc32c")
			}
			data = data[:len(data)-4]
		default:
			return nil, nil, fmt.Errorf("unsupported zarr codec %q", cd.Name)
		}
	}
	return data, order, nil
}

func zarrCellType(dataType string) (raster.CellType, error) {
	switch dataType {
	case "bool":
		return raster.Bit, nil
	case "int8":
		return raster.Byte, nil
	case "uint8":
		return raster.UByte, nil
	case "int16":
		return raster.Short, nil
	case "uint16":
		return raster.UShort, nil
	case "int32":
		return raster.Int, nil
	case "float32":
		return raster.Float, nil
	case "float64":
		return raster.Double, nil
	}
	return 0, fmt.Errorf("unsupported zarr data_type: %s", dataType)
}

func zarrDTypeSize(ct raster.CellType) int {
	switch ct {
	case raster.Bit, raster.Byte, raster.UByte:
		return 1
	case raster.Short, raster.UShort:
		return 2
	case raster.Double:
		return 8
	}
	return 4
}

// chunkTile converts a decoded row-major chunk to a band. The fill value
// becomes the band's no-data value.
func chunkTile(m *zarrArrayMeta, data []byte, order binary.ByteOrder) (raster.Tile, error) {
	ct, err := zarrCellType(m.DataType)
	if err != nil {
		return raster.Tile{}, err
	}
	rows, cols := m.ChunkGrid.Configuration.ChunkShape[0], m.ChunkGrid.Configuration.ChunkShape[1]
	size := zarrDTypeSize(ct)
	if len(data) != rows*cols*size {
		return raster.Tile{}, fmt.Errorf("chunk holds %d bytes, expected %d", len(data), rows*cols*size)
	}

	tile := raster.NewTile(cols, rows, ct)
	for i := range tile.Cells {
		b := data[i*size : (i+1)*size]
		switch ct {
		case raster.Bit, raster.UByte:
			tile.Cells[i] = float64(b[0])
		case raster.Byte:
			tile.Cells[i] = float64(int8(b[0]))
		case raster.Short:
			tile.Cells[i] = float64(int16(order.Uint16(b)))
		case raster.UShort:
			tile.Cells[i] = float64(order.Uint16(b))
		case raster.Int:
			tile.Cells[i] = float64(int32(order.Uint32(b)))
		case raster.Float:
			tile.Cells[i] = float64(math.Float32frombits(order.Uint32(b)))
		case raster.Double:
			tile.Cells[i] = math.Float64frombits(order.Uint64(b))
		}
	}

	if nd, ok := fillValue(m.FillValue); ok {
		tile.NoData = &nd
	}
	return tile, nil
}

// fillValue accepts numeric fill values and the "NaN" spelling used for
// floats.
func fillValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		if strings.EqualFold(t, "nan") {
			return math.NaN(), true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
