// Package tiff implements a BigTIFF-aware directory reader and JPEG-tile
// decoder for the tiled pyramid container used by whole-slide scanners.
// Unlike golang.org/x/image/tiff's simpler cousin, it supports the
// 64-bit offsets of BigTIFF, JPEG tile compression with shared
// quantisation/Huffman tables, and the subimage classification a
// multi-resolution pyramid needs.
package tiff

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/tiff/compression"
	"github.com/pathviewer/wsicore/tiff/photometric"
	"github.com/pathviewer/wsicore/tiff/planarconfig"
	"github.com/pathviewer/wsicore/tiff/tifftag"
)

// Errors surfaced at image-open time.
var (
	ErrBadMagic              = errors.New("tiff: bad magic number")
	ErrTruncatedIfd          = errors.New("tiff: truncated IFD")
	ErrUnsupportedCompresion = errors.New("tiff: unsupported compression")
	ErrInconsistentTileTable = errors.New("tiff: inconsistent tile offset/bytecount table")
)

// SubimageKind classifies an IFD during the post-parse classification pass.
type SubimageKind int

const (
	SubimageUnknown SubimageKind = iota
	SubimageLevel
	SubimageMacro
	SubimageLabel
)

// Ifd is one parsed TIFF/BigTIFF Image File Directory.
type Ifd struct {
	ImageWidth, ImageHeight int64
	TileWidth, TileHeight   int64
	TileOffsets             []int64
	TileByteCounts          []int64
	JpegTables              []byte
	Compression             compression.Type
	Photometric             photometric.Interpretation
	PlanarConfig            planarconfig.Type
	SamplesPerPixel         int
	BitsPerSample           []int
	ImageDescription        string
	XResolution             float64 // pixels per ResolutionUnit
	YResolution             float64
	ResolutionUnit          int // 2=inch, 3=centimetre
	Kind                    SubimageKind
	DownsampleLevel         int // valid only when Kind == SubimageLevel

	nextOffset int64
}

// TilesAcross/TilesDown report the tile grid dimensions implied by the
// IFD's image and tile sizes, rounding up as TIFF mandates for edge tiles.
func (ifd *Ifd) TilesAcross() int64 { return ceilDiv(ifd.ImageWidth, ifd.TileWidth) }
func (ifd *Ifd) TilesDown() int64   { return ceilDiv(ifd.ImageHeight, ifd.TileHeight) }

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Header is the parsed directory chain of a TIFF/BigTIFF file: every IFD,
// in file order, plus the detected byte order and BigTIFF-ness.
type Header struct {
	ByteOrder binary.ByteOrder
	BigTIFF   bool
	Ifds      []*Ifd
}

// MicronsPerPixel derives mpp from XResolution/ResolutionUnit: when the
// unit is centimetre (3), mpp = 10000 / pixels-per-cm; when it is inch
// (2), the standard 25400 microns/inch conversion is used instead.
// ResolutionUnit 1 (no absolute unit) yields mpp=0, which callers must
// treat as "unknown".
func (ifd *Ifd) MicronsPerPixel() (x, y float64) {
	switch ifd.ResolutionUnit {
	case 3: // centimetre
		if ifd.XResolution > 0 {
			x = 10000.0 / ifd.XResolution
		}
		if ifd.YResolution > 0 {
			y = 10000.0 / ifd.YResolution
		}
	case 2: // inch
		if ifd.XResolution > 0 {
			x = 25400.0 / ifd.XResolution
		}
		if ifd.YResolution > 0 {
			y = 25400.0 / ifd.YResolution
		}
	}
	return x, y
}

type tagEntry struct {
	tag      tifftag.Tag
	typ      uint16
	count    uint64
	valueRaw []byte // inline value bytes, or the 4/8-byte offset if not inline
}

// ParseHeader reads the 8-byte (classic) or 16-byte (BigTIFF) file header
// and walks the full IFD chain.
func ParseHeader(ctx context.Context, src bytesource.Source) (*Header, error) {
	magic := make([]byte, 8)
	if _, err := src.ReadAt(ctx, 0, magic); err != nil {
		return nil, fmt.Errorf("tiff: reading header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(magic[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, ErrBadMagic
	}

	magicNumber := bo.Uint16(magic[2:4])
	var bigTIFF bool
	var firstIfd int64
	switch magicNumber {
	case 42:
		bigTIFF = false
		firstIfd = int64(bo.Uint32(magic[4:8]))
	case 43:
		bigTIFF = true
		offsetSize := bo.Uint16(magic[4:6])
		alwaysZero := bo.Uint16(magic[6:8])
		if offsetSize != 8 || alwaysZero != 0 {
			return nil, ErrBadMagic
		}
		rest := make([]byte, 8)
		if _, err := src.ReadAt(ctx, 8, rest); err != nil {
			return nil, fmt.Errorf("tiff: reading BigTIFF header tail: %w", err)
		}
		firstIfd = int64(bo.Uint64(rest))
	default:
		return nil, ErrBadMagic
	}

	h := &Header{ByteOrder: bo, BigTIFF: bigTIFF}
	offset := firstIfd
	for offset != 0 {
		ifd, next, err := parseIfd(ctx, src, bo, bigTIFF, offset)
		if err != nil {
			return nil, err
		}
		h.Ifds = append(h.Ifds, ifd)
		offset = next
	}
	classifyIfds(h.Ifds)
	return h, nil
}

func parseIfd(ctx context.Context, src bytesource.Source, bo binary.ByteOrder, bigTIFF bool, offset int64) (*Ifd, int64, error) {
	countBytes := 2
	entrySize := 12
	offsetBytes := 4
	if bigTIFF {
		countBytes = 8
		entrySize = 20
		offsetBytes = 8
	}

	cbuf := make([]byte, countBytes)
	if _, err := src.ReadAt(ctx, offset, cbuf); err != nil {
		return nil, 0, fmt.Errorf("%w: reading entry count: %v", ErrTruncatedIfd, err)
	}
	var numEntries uint64
	if bigTIFF {
		numEntries = bo.Uint64(cbuf)
	} else {
		numEntries = uint64(bo.Uint16(cbuf))
	}

	entriesBuf := make([]byte, int(numEntries)*entrySize)
	if _, err := src.ReadAt(ctx, offset+int64(countBytes), entriesBuf); err != nil {
		return nil, 0, fmt.Errorf("%w: reading entries: %v", ErrTruncatedIfd, err)
	}

	nextOffBuf := make([]byte, offsetBytes)
	nextOff := offset + int64(countBytes) + int64(numEntries)*int64(entrySize)
	if _, err := src.ReadAt(ctx, nextOff, nextOffBuf); err != nil {
		return nil, 0, fmt.Errorf("%w: reading next-IFD offset: %v", ErrTruncatedIfd, err)
	}
	var nextIfd int64
	if bigTIFF {
		nextIfd = int64(bo.Uint64(nextOffBuf))
	} else {
		nextIfd = int64(bo.Uint32(nextOffBuf))
	}

	ifd := &Ifd{Compression: compression.Unknown, Photometric: photometric.Unknown, PlanarConfig: planarconfig.Unknown, ResolutionUnit: 2}

	readArray := func(tagBytes []byte, typ uint16, count uint64) ([]int64, error) {
		sizePer := typeSize(typ)
		inlineCap := int64(4)
		if bigTIFF {
			inlineCap = 8
		}
		if int64(sizePer)*int64(count) <= inlineCap {
			out := make([]int64, count)
			for i := uint64(0); i < count; i++ {
				out[i] = readTyped(bo, tagBytes[int(i)*sizePer:], typ)
			}
			return out, nil
		}
		var dataOffset int64
		if bigTIFF {
			dataOffset = int64(bo.Uint64(tagBytes))
		} else {
			dataOffset = int64(bo.Uint32(tagBytes))
		}
		buf := make([]byte, int64(sizePer)*int64(count))
		if _, err := src.ReadAt(ctx, dataOffset, buf); err != nil {
			return nil, fmt.Errorf("%w: reading array for tag: %v", ErrTruncatedIfd, err)
		}
		out := make([]int64, count)
		for i := uint64(0); i < count; i++ {
			out[i] = readTyped(bo, buf[int(i)*sizePer:], typ)
		}
		return out, nil
	}

	for i := uint64(0); i < numEntries; i++ {
		entry := entriesBuf[int(i)*entrySize : int(i+1)*entrySize]
		tagID := tifftag.Tag(bo.Uint16(entry[0:2]))
		typ := bo.Uint16(entry[2:4])
		var count uint64
		var valueBytes []byte
		if bigTIFF {
			count = bo.Uint64(entry[4:12])
			valueBytes = entry[12:20]
		} else {
			count = uint64(bo.Uint32(entry[4:8]))
			valueBytes = entry[8:12]
		}

		switch tagID {
		case tifftag.ImageWidth:
			ifd.ImageWidth = readTyped(bo, valueBytes, typ)
		case tifftag.ImageLength:
			ifd.ImageHeight = readTyped(bo, valueBytes, typ)
		case tifftag.TileWidth:
			ifd.TileWidth = readTyped(bo, valueBytes, typ)
		case tifftag.TileLength:
			ifd.TileHeight = readTyped(bo, valueBytes, typ)
		case tifftag.SamplesPerPixel:
			ifd.SamplesPerPixel = int(readTyped(bo, valueBytes, typ))
		case tifftag.Compression:
			ifd.Compression = compression.Type(readTyped(bo, valueBytes, typ))
		case tifftag.PhotometricInterpretation:
			ifd.Photometric = photometric.Interpretation(readTyped(bo, valueBytes, typ))
		case tifftag.PlanarConfiguration:
			ifd.PlanarConfig = planarconfig.Type(readTyped(bo, valueBytes, typ))
		case tifftag.ResolutionUnit:
			ifd.ResolutionUnit = int(readTyped(bo, valueBytes, typ))
		case tifftag.BitsPerSample:
			arr, err := readArray(valueBytes, typ, count)
			if err != nil {
				return nil, 0, err
			}
			ifd.BitsPerSample = toInts(arr)
		case tifftag.TileOffsets:
			arr, err := readArray(valueBytes, typ, count)
			if err != nil {
				return nil, 0, err
			}
			ifd.TileOffsets = arr
		case tifftag.TileByteCounts:
			arr, err := readArray(valueBytes, typ, count)
			if err != nil {
				return nil, 0, err
			}
			ifd.TileByteCounts = arr
		case tifftag.JPEGTables:
			arr, err := readArray(valueBytes, typ, count)
			if err != nil {
				return nil, 0, err
			}
			ifd.JpegTables = toBytes(arr)
		case tifftag.ImageDescription:
			var dataOffset int64
			if count <= uint64(len(valueBytes)) {
				ifd.ImageDescription = stripNul(valueBytes[:count])
			} else {
				if bigTIFF {
					dataOffset = int64(bo.Uint64(valueBytes))
				} else {
					dataOffset = int64(bo.Uint32(valueBytes))
				}
				buf := make([]byte, count)
				if _, err := src.ReadAt(ctx, dataOffset, buf); err == nil {
					ifd.ImageDescription = stripNul(buf)
				}
			}
		case tifftag.XResolution:
			ifd.XResolution = readRational(ctx, src, bo, bigTIFF, valueBytes)
		case tifftag.YResolution:
			ifd.YResolution = readRational(ctx, src, bo, bigTIFF, valueBytes)
		}
	}

	if len(ifd.TileOffsets) != len(ifd.TileByteCounts) {
		return nil, 0, ErrInconsistentTileTable
	}

	return ifd, nextIfd, nil
}

func readRational(ctx context.Context, src bytesource.Source, bo binary.ByteOrder, bigTIFF bool, valueBytes []byte) float64 {
	var off int64
	if bigTIFF {
		off = int64(bo.Uint64(valueBytes))
	} else {
		off = int64(bo.Uint32(valueBytes))
	}
	buf := make([]byte, 8)
	if _, err := src.ReadAt(ctx, off, buf); err != nil {
		return 0
	}
	num := bo.Uint32(buf[0:4])
	den := bo.Uint32(buf[4:8])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12, 16, 17, 18: // RATIONAL, SRATIONAL, DOUBLE, LONG8, SLONG8, IFD8
		return 8
	default:
		return 1
	}
}

func readTyped(bo binary.ByteOrder, b []byte, typ uint16) int64 {
	switch typ {
	case 1, 2, 6, 7:
		if len(b) < 1 {
			return 0
		}
		return int64(b[0])
	case 3, 8:
		return int64(bo.Uint16(b))
	case 4, 9:
		return int64(bo.Uint32(b))
	case 16, 17, 18:
		return int64(bo.Uint64(b))
	default:
		return int64(bo.Uint32(b))
	}
}

func toInts(in []int64) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func toBytes(in []int64) []byte {
	out := make([]byte, len(in))
	for i, v := range in {
		out[i] = byte(v)
	}
	return out
}

func stripNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
