// Package codec encodes and decodes multiband tiles in the protobuf
// ProtoMultibandTile wire format, optionally zstd-framed.
//
// Messages:
//
//	ProtoMultibandTile { repeated ProtoTile tiles = 1; }
//	ProtoTile {
//	  int32 cols = 1; int32 rows = 2; ProtoCellType cellType = 3;
//	  repeated sint32 sint32Cells = 4; repeated uint32 uint32Cells = 5;
//	  repeated float floatCells = 6; repeated double doubleCells = 7;
//	}
//	ProtoCellType { DataType dataType = 1; double nd = 2; bool hasNoData = 3; }
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/geotms/server/internal/raster"
)

const (
	fieldTiles = 1

	fieldCols     = 1
	fieldRows     = 2
	fieldCellType = 3
	fieldSint32   = 4
	fieldUint32   = 5
	fieldFloat    = 6
	fieldDouble   = 7

	fieldDataType  = 1
	fieldNoData    = 2
	fieldHasNoData = 3
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error

	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

func zstdEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return encoder, encoderErr
}

// Decode parses a ProtoMultibandTile. zstd-framed input is decompressed
// first.
func Decode(data []byte) (*raster.MultibandTile, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress tile: %w", err)
		}
	}

	var bands []raster.Tile
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num == fieldTiles && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			band, err := decodeTile(msg)
			if err != nil {
				return nil, fmt.Errorf("band %d: %w", len(bands), err)
			}
			bands = append(bands, band)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return raster.NewMultibandTile(bands...)
}

func decodeTile(data []byte) (raster.Tile, error) {
	var t raster.Tile
	var hasNoData bool
	var nd float64
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return t, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldCols && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return t, protowire.ParseError(n)
			}
			t.Cols = int(int32(v))
			data = data[n:]
		case num == fieldRows && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return t, protowire.ParseError(n)
			}
			t.Rows = int(int32(v))
			data = data[n:]
		case num == fieldCellType && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return t, protowire.ParseError(n)
			}
			ct, ndv, has, err := decodeCellType(msg)
			if err != nil {
				return t, err
			}
			t.CellType, nd, hasNoData = ct, ndv, has
			data = data[n:]
		case num >= fieldSint32 && num <= fieldDouble:
			cells, n, err := consumeCells(num, typ, data, t.Cells)
			if err != nil {
				return t, err
			}
			t.Cells = cells
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return t, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if t.Cols < 0 || t.Rows < 0 {
		return t, fmt.Errorf("negative tile dimensions %dx%d", t.Cols, t.Rows)
	}
	if len(t.Cells) != t.Cols*t.Rows {
		return t, fmt.Errorf("tile %dx%d carries %d cells", t.Cols, t.Rows, len(t.Cells))
	}
	if hasNoData {
		t.NoData = &nd
	}
	return t, nil
}

func decodeCellType(data []byte) (ct raster.CellType, nd float64, hasNoData bool, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, 0, false, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == fieldDataType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, false, protowire.ParseError(n)
			}
			if v > uint64(raster.Double) {
				return 0, 0, false, fmt.Errorf("unknown data type %d", v)
			}
			ct = raster.CellType(v)
			data = data[n:]
		case num == fieldNoData && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return 0, 0, false, protowire.ParseError(n)
			}
			nd = math.Float64frombits(v)
			data = data[n:]
		case num == fieldHasNoData && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, false, protowire.ParseError(n)
			}
			hasNoData = v != 0
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, 0, false, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return ct, nd, hasNoData, nil
}

// consumeCells reads one occurrence of a repeated cell field, packed or not.
func consumeCells(num protowire.Number, typ protowire.Type, data []byte, cells []float64) ([]float64, int, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m, err := consumeScalar(num, packed)
			if err != nil {
				return nil, 0, err
			}
			cells = append(cells, v)
			packed = packed[m:]
		}
		return cells, n, nil
	}
	v, n, err := consumeScalar(num, data)
	if err != nil {
		return nil, 0, err
	}
	return append(cells, v), n, nil
}

func consumeScalar(num protowire.Number, data []byte) (float64, int, error) {
	switch num {
	case fieldSint32:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		return float64(int32(protowire.DecodeZigZag(v))), n, nil
	case fieldUint32:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		return float64(uint32(v)), n, nil
	case fieldFloat:
		v, n := protowire.ConsumeFixed32(data)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		return float64(math.Float32frombits(v)), n, nil
	case fieldDouble:
		v, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			return 0, 0, protowire.ParseError(n)
		}
		return math.Float64frombits(v), n, nil
	}
	return 0, 0, errors.New("not a cell field")
}

// Encode writes m as a ProtoMultibandTile with packed cell arrays.
func Encode(m *raster.MultibandTile) []byte {
	var out []byte
	for _, band := range m.Bands {
		out = protowire.AppendTag(out, fieldTiles, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeTile(band))
	}
	return out
}

// EncodeCompressed writes m zstd-framed.
func EncodeCompressed(m *raster.MultibandTile) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc.EncodeAll(Encode(m), nil), nil
}

func encodeTile(t raster.Tile) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldCols, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(int64(t.Cols)))
	out = protowire.AppendTag(out, fieldRows, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(int64(t.Rows)))

	var ct []byte
	ct = protowire.AppendTag(ct, fieldDataType, protowire.VarintType)
	ct = protowire.AppendVarint(ct, uint64(t.CellType))
	if t.NoData != nil {
		ct = protowire.AppendTag(ct, fieldNoData, protowire.Fixed64Type)
		ct = protowire.AppendFixed64(ct, math.Float64bits(*t.NoData))
		ct = protowire.AppendTag(ct, fieldHasNoData, protowire.VarintType)
		ct = protowire.AppendVarint(ct, 1)
	}
	out = protowire.AppendTag(out, fieldCellType, protowire.BytesType)
	out = protowire.AppendBytes(out, ct)

	if len(t.Cells) == 0 {
		return out
	}
	var packed []byte
	field := cellField(t.CellType)
	for _, v := range t.Cells {
		switch field {
		case fieldSint32:
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(int32(v))))
		case fieldUint32:
			packed = protowire.AppendVarint(packed, uint64(uint32(v)))
		case fieldFloat:
			packed = protowire.AppendFixed32(packed, math.Float32bits(float32(v)))
		default:
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
	}
	out = protowire.AppendTag(out, field, protowire.BytesType)
	return protowire.AppendBytes(out, packed)
}

func cellField(ct raster.CellType) protowire.Number {
	switch ct {
	case raster.UByte, raster.UShort:
		return fieldUint32
	case raster.Float:
		return fieldFloat
	case raster.Double:
		return fieldDouble
	default:
		return fieldSint32
	}
}
