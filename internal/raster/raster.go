// Package raster holds the in-memory tile model: spatial keys, bounds, layer
// metadata and multiband cell grids.
package raster

import (
	"fmt"
	"math"
	"strings"
)

// WebMercator is the target spatial reference of every pyramid.
const WebMercator = "EPSG:3857"

// CellType is the numeric type of a tile's cells. Values match the
// DataType enum of the protobuf tile encoding.
type CellType int

const (
	Bit CellType = iota
	Byte
	UByte
	Short
	UShort
	Int
	Float
	Double
)

var cellTypeNames = []string{"bit", "int8", "uint8", "int16", "uint16", "int32", "float32", "float64"}

func (c CellType) String() string {
	if c < 0 || int(c) >= len(cellTypeNames) {
		return fmt.Sprintf("celltype(%d)", int(c))
	}
	return cellTypeNames[c]
}

// IsFloat reports whether cells hold floating point values.
func (c CellType) IsFloat() bool {
	return c == Float || c == Double
}

// ParseCellType accepts the names returned by CellType.String.
func ParseCellType(s string) (CellType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range cellTypeNames {
		if n == s {
			return CellType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cell type %q", s)
}

// SpatialKey is a tile's column and row at a fixed zoom level.
type SpatialKey struct {
	Col int `json:"col" yaml:"col"`
	Row int `json:"row" yaml:"row"`
}

func (k SpatialKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.Col, k.Row)
}

// Bounds is the inclusive key rectangle of one pyramid level.
type Bounds struct {
	MinKey SpatialKey `json:"minKey" yaml:"min_key"`
	MaxKey SpatialKey `json:"maxKey" yaml:"max_key"`
}

// Validate checks that min does not exceed max on either axis.
func (b Bounds) Validate() error {
	if b.MinKey.Col > b.MaxKey.Col || b.MinKey.Row > b.MaxKey.Row {
		return fmt.Errorf("invalid bounds: min %v exceeds max %v", b.MinKey, b.MaxKey)
	}
	return nil
}

// Contains reports whether k lies inside b.
func (b Bounds) Contains(k SpatialKey) bool {
	return k.Col >= b.MinKey.Col && k.Col <= b.MaxKey.Col &&
		k.Row >= b.MinKey.Row && k.Row <= b.MaxKey.Row
}

// BoundsOf returns the smallest bounds covering keys. ok is false when keys
// is empty.
func BoundsOf(keys []SpatialKey) (b Bounds, ok bool) {
	for i, k := range keys {
		if i == 0 {
			b = Bounds{MinKey: k, MaxKey: k}
			continue
		}
		b.MinKey.Col = min(b.MinKey.Col, k.Col)
		b.MinKey.Row = min(b.MinKey.Row, k.Row)
		b.MaxKey.Col = max(b.MaxKey.Col, k.Col)
		b.MaxKey.Row = max(b.MaxKey.Row, k.Row)
	}
	return b, len(keys) > 0
}

// LayerMetadata describes one materialized layer.
type LayerMetadata struct {
	Zoom     int      `json:"zoom"`
	Bounds   Bounds   `json:"bounds"`
	CRS      string   `json:"crs"`
	TileCols int      `json:"tileCols"`
	TileRows int      `json:"tileRows"`
	CellType CellType `json:"cellType"`
}

// Tile is a single band grid stored row-major. Integer cell types keep
// integral values in Cells.
type Tile struct {
	Cols     int
	Rows     int
	CellType CellType
	NoData   *float64
	Cells    []float64
}

// NewTile allocates a zeroed band.
func NewTile(cols, rows int, ct CellType) Tile {
	return Tile{Cols: cols, Rows: rows, CellType: ct, Cells: make([]float64, cols*rows)}
}

// Get returns the cell at (col, row).
func (t Tile) Get(col, row int) float64 {
	return t.Cells[row*t.Cols+col]
}

// Set stores v at (col, row).
func (t Tile) Set(col, row int, v float64) {
	t.Cells[row*t.Cols+col] = v
}

// IsNoData reports whether v is the declared no-data sentinel. NaN always
// counts as no-data for floating point cells.
func (t Tile) IsNoData(v float64) bool {
	if t.CellType.IsFloat() && math.IsNaN(v) {
		return true
	}
	return t.NoData != nil && v == *t.NoData
}

// MultibandTile is a bands x rows x cols cell grid.
type MultibandTile struct {
	Bands []Tile
}

// NewMultibandTile wraps bands, checking they share one shape.
func NewMultibandTile(bands ...Tile) (*MultibandTile, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("multiband tile needs at least one band")
	}
	for i, b := range bands {
		if b.Cols != bands[0].Cols || b.Rows != bands[0].Rows {
			return nil, fmt.Errorf("band %d is %dx%d, band 0 is %dx%d", i, b.Cols, b.Rows, bands[0].Cols, bands[0].Rows)
		}
		if len(b.Cells) != b.Cols*b.Rows {
			return nil, fmt.Errorf("band %d has %d cells, want %d", i, len(b.Cells), b.Cols*b.Rows)
		}
	}
	return &MultibandTile{Bands: bands}, nil
}

// BandCount returns the number of bands.
func (m *MultibandTile) BandCount() int { return len(m.Bands) }

// Cols returns the width shared by all bands.
func (m *MultibandTile) Cols() int { return m.Bands[0].Cols }

// Rows returns the height shared by all bands.
func (m *MultibandTile) Rows() int { return m.Bands[0].Rows }

// Band returns band i.
func (m *MultibandTile) Band(i int) Tile { return m.Bands[i] }

// Get returns the cell of band b at (col, row).
func (m *MultibandTile) Get(b, col, row int) float64 {
	return m.Bands[b].Get(col, row)
}

// Layer is a keyed collection of tiles at one zoom level. A key may hold
// several shards; their order is preserved.
type Layer struct {
	Metadata LayerMetadata
	Tiles    map[SpatialKey][]*MultibandTile
}

// NewLayer returns an empty layer with the given metadata.
func NewLayer(md LayerMetadata) *Layer {
	return &Layer{Metadata: md, Tiles: make(map[SpatialKey][]*MultibandTile)}
}

// Add appends a shard under k.
func (l *Layer) Add(k SpatialKey, t *MultibandTile) {
	l.Tiles[k] = append(l.Tiles[k], t)
}

// Keys returns every key holding at least one shard.
func (l *Layer) Keys() []SpatialKey {
	keys := make([]SpatialKey, 0, len(l.Tiles))
	for k := range l.Tiles {
		keys = append(keys, k)
	}
	return keys
}

// Lookup returns the shards stored under k.
func (l *Layer) Lookup(k SpatialKey) []*MultibandTile {
	return l.Tiles[k]
}
