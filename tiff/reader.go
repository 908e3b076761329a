package tiff

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/tiff/compression"
	"github.com/pathviewer/wsicore/tiff/photometric"
)

// Options tunes behaviour some scanner vendors apply inconsistently.
// CoordinateScale defaults to 1.0 in DefaultOptions. No code in this
// package reads it: setting it does not change tile addressing or region
// coordinates.
type Options struct {
	CoordinateScale float64
	// RawTileCacheSize bounds the number of raw (still compressed) tile
	// payload entries kept in the package-local LRU (distinct from the
	// byte-budget Tile Cache in package cache; see DESIGN.md).
	RawTileCacheSize int
}

// DefaultOptions matches the defaults used throughout the rest of the
// reader (200-entry LRU).
func DefaultOptions() Options {
	return Options{CoordinateScale: 1.0, RawTileCacheSize: 200}
}

// Reader is a random-access TIFF/BigTIFF pyramid reader: it owns the
// parsed directory chain and the byte source tile payloads are read from.
// One Reader corresponds to one open Image's TIFF backend.
type Reader struct {
	src    bytesource.Source
	header *Header
	opts   Options

	// levelIfds indexes Header.Ifds by DownsampleLevel for IFDs
	// classified as SubimageLevel, ascending.
	levelIfds []*Ifd

	tileCache *lru.Cache // (level<<48 | tileIndex) -> raw compressed tile payload
}

// Open parses the directory chain and classifies subimages.
func Open(ctx context.Context, src bytesource.Source, opts Options) (*Reader, error) {
	header, err := ParseHeader(ctx, src)
	if err != nil {
		return nil, err
	}
	r := &Reader{src: src, header: header, opts: opts}
	for _, ifd := range header.Ifds {
		if ifd.Kind != SubimageLevel {
			continue
		}
		if ifd.Compression != compression.JPEG {
			continue
		}
		r.levelIfds = append(r.levelIfds, ifd)
	}
	cacheSize := opts.RawTileCacheSize
	if cacheSize <= 0 {
		cacheSize = 200
	}
	cache, _ := lru.New(cacheSize)
	r.tileCache = cache
	return r, nil
}

// LevelCount returns how many JPEG-compressed pyramid levels were found.
func (r *Reader) LevelCount() int { return len(r.levelIfds) }

// Level returns the Ifd backing pyramid level l, or nil if out of range.
func (r *Reader) Level(l int) *Ifd {
	for _, ifd := range r.levelIfds {
		if ifd.DownsampleLevel == l {
			return ifd
		}
	}
	return nil
}

// MaxLevel returns the highest DownsampleLevel present.
func (r *Reader) MaxLevel() int {
	max := 0
	for _, ifd := range r.levelIfds {
		if ifd.DownsampleLevel > max {
			max = ifd.DownsampleLevel
		}
	}
	return max
}

// ReadTile decodes the tile at (tileX, tileY) of pyramid level l into dst,
// a tileW*tileH*4 BGRA8 buffer. It keeps each tile's raw compressed
// payload in an internal LRU (not a substitute for the streamer's
// single-flight cache — this just avoids re-reading the same compressed
// bytes from disk across repeated decode calls within one Reader's
// lifetime); the JPEG decode itself runs on every call.
func (r *Reader) ReadTile(ctx context.Context, l, tileX, tileY int, dst []byte) error {
	ifd := r.Level(l)
	if ifd == nil {
		return fmt.Errorf("tiff: level %d not present", l)
	}
	tilesAcross := ifd.TilesAcross()
	tileIndex := int64(tileY)*tilesAcross + int64(tileX)
	if tileIndex < 0 || int(tileIndex) >= len(ifd.TileOffsets) {
		return fmt.Errorf("tiff: tile (%d,%d) out of range at level %d", tileX, tileY, l)
	}

	key := (uint64(l) << 48) | uint64(tileIndex)
	var payload []byte
	if v, ok := r.tileCache.Get(key); ok {
		payload = v.([]byte)
	} else {
		byteCount := ifd.TileByteCounts[tileIndex]
		if byteCount > 0 {
			payload = make([]byte, byteCount)
			if _, err := r.src.ReadAt(ctx, ifd.TileOffsets[tileIndex], payload); err != nil {
				return fmt.Errorf("tiff: reading tile payload: %w", err)
			}
		}
		r.tileCache.Add(key, payload)
	}

	validW := int(ifd.ImageWidth) - tileX*int(ifd.TileWidth)
	if validW > int(ifd.TileWidth) {
		validW = int(ifd.TileWidth)
	}
	validH := int(ifd.ImageHeight) - tileY*int(ifd.TileHeight)
	if validH > int(ifd.TileHeight) {
		validH = int(ifd.TileHeight)
	}

	var photo photometric.Interpretation = ifd.Photometric
	return DecodeTile(dst, ifd.JpegTables, payload, int(ifd.TileWidth), int(ifd.TileHeight), validW, validH, photo)
}

// PrefetchTiles fetches the raw compressed payload of several tiles at
// one level in a single batched ReadBatch call, populating the raw-tile
// LRU so the per-tile ReadTile calls that follow are cache hits instead
// of separate round trips. This is the remote-streaming coalescing path;
// tiles already cached or with no stored payload are skipped.
func (r *Reader) PrefetchTiles(ctx context.Context, l int, tileIndices []int) error {
	ifd := r.Level(l)
	if ifd == nil {
		return fmt.Errorf("tiff: level %d not present", l)
	}

	var ranges []bytesource.Range
	var keys []uint64
	for _, idx := range tileIndices {
		if idx < 0 || idx >= len(ifd.TileOffsets) {
			continue
		}
		key := (uint64(l) << 48) | uint64(idx)
		if _, ok := r.tileCache.Get(key); ok {
			continue
		}
		byteCount := ifd.TileByteCounts[idx]
		if byteCount <= 0 {
			continue
		}
		ranges = append(ranges, bytesource.Range{Offset: ifd.TileOffsets[idx], Length: byteCount})
		keys = append(keys, key)
	}
	if len(ranges) == 0 {
		return nil
	}

	buf, err := r.src.ReadBatch(ctx, ranges)
	if err != nil {
		return fmt.Errorf("tiff: prefetching tiles: %w", err)
	}
	offset := int64(0)
	for i, rg := range ranges {
		r.tileCache.Add(keys[i], buf[offset:offset+rg.Length])
		offset += rg.Length
	}
	return nil
}

// ReadRegion decodes an arbitrary w×h BGRA8 region at pyramid level l,
// starting at pixel (x,y), by decoding every tile the region overlaps and
// copying the overlapping pixels into dst (row-major, w*h*4 bytes). This
// is the TIFF half of the Image dispatcher's read_region contract.
func (r *Reader) ReadRegion(ctx context.Context, l, x, y, w, h int, dst []byte) error {
	ifd := r.Level(l)
	if ifd == nil {
		return fmt.Errorf("tiff: level %d not present", l)
	}
	tw, th := int(ifd.TileWidth), int(ifd.TileHeight)
	if tw == 0 || th == 0 {
		return ErrInconsistentTileTable
	}

	firstTileX, firstTileY := x/tw, y/th
	lastTileX, lastTileY := (x+w-1)/tw, (y+h-1)/th

	tileBuf := make([]byte, tw*th*4)
	for ty := firstTileY; ty <= lastTileY; ty++ {
		for tx := firstTileX; tx <= lastTileX; tx++ {
			if err := r.ReadTile(ctx, l, tx, ty, tileBuf); err != nil {
				return err
			}
			tileOriginX, tileOriginY := tx*tw, ty*th
			for sy := 0; sy < th; sy++ {
				py := tileOriginY + sy
				dy := py - y
				if dy < 0 || dy >= h {
					continue
				}
				for sx := 0; sx < tw; sx++ {
					px := tileOriginX + sx
					dx := px - x
					if dx < 0 || dx >= w {
						continue
					}
					copy(dst[(dy*w+dx)*4:(dy*w+dx)*4+4], tileBuf[(sy*tw+sx)*4:(sy*tw+sx)*4+4])
				}
			}
		}
	}
	return nil
}
