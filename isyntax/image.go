package isyntax

import (
	"context"
	"fmt"
	"io"

	"github.com/pathviewer/wsicore/bytesource"
)

// blockKey addresses one codeblock by its full coordinate.
type blockKey struct {
	scale, x, y int
	colour      Colour
	kind        CoeffKind
}

// Image is one open iSyntax file: its parsed metadata, the codeblock
// index built from the block header/seek tables, and the in-progress
// tile reconstruction state. It owns no goroutines; callers drive
// decoding (EnsureBootstrap, DecodeTile) explicitly, the same way the
// tile streamer drives the TIFF reader.
type Image struct {
	src    bytesource.Source
	header *Header

	blocks map[blockKey]Codeblock
	chunks []Chunk
	topScale int

	// tiles indexes reconstruction state by (scale, x, y); present only
	// for tiles that have at least one decoded channel.
	tiles map[[3]int]*Tile

	bootstrapped bool
}

// Open parses the iSyntax container: the XML metadata header up to its
// 0x04 terminator, then the block header table / seek table it embeds,
// resolving a flat codeblock index and the chunk boundaries used for
// range-read coalescing.
func Open(ctx context.Context, src bytesource.Source, headerProbe []byte) (*Image, error) {
	term := -1
	for i, b := range headerProbe {
		if b == 0x04 {
			term = i
			break
		}
	}
	if term < 0 {
		return nil, fmt.Errorf("isyntax: 0x04 xml terminator not found in header probe")
	}

	h, err := ParseXML(newByteReader(headerProbe[:term]))
	if err != nil {
		return nil, err
	}

	var seek []seekEntry
	if !h.BlockHeaderIsFull {
		seek, err = parseSeekTable(h.SeekTableRaw)
		if err != nil {
			return nil, err
		}
	}
	codeblocks, err := resolveCodeblocks(h.Blocks, seek, h.BlockHeaderIsFull)
	if err != nil {
		return nil, err
	}

	topScale := h.MaxScale
	chunks, err := buildChunks(codeblocks, topScale)
	if err != nil {
		return nil, err
	}

	// Codeblock offsets recorded in the header are treated as relative to
	// the binary section start, i.e. term+1 bytes into
	// the probe plus however much of the file precedes it. Open receives
	// headerProbe already positioned at file offset 0, so the binary
	// payload starts at term+1.
	binaryBase := int64(term + 1)

	blocks := make(map[blockKey]Codeblock, len(codeblocks))
	for _, cb := range codeblocks {
		cb.Offset += binaryBase
		blocks[blockKey{scale: cb.Scale, x: cb.X, y: cb.Y, colour: cb.Colour, kind: cb.Kind}] = cb
	}
	for i := range chunks {
		chunks[i].Offset += binaryBase
	}

	return &Image{
		src:      src,
		header:   h,
		blocks:   blocks,
		chunks:   chunks,
		topScale: topScale,
		tiles:    make(map[[3]int]*Tile),
	}, nil
}

// byteReader adapts a byte slice to io.Reader for ParseXML without
// pulling in bytes.Reader's extra surface.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

// LevelCount reports how many pyramid scales the image has (topScale+1).
func (img *Image) LevelCount() int { return img.topScale + 1 }

// Dimensions reports the level-0 pixel dimensions.
func (img *Image) Dimensions() (width, height int64) {
	return img.header.ImageWidth, img.header.ImageHeight
}

// MicronsPerPixel reports the level-0 resolution.
func (img *Image) MicronsPerPixel() (x, y float64) {
	return img.header.MicronsPerPixelX, img.header.MicronsPerPixelY
}

// Chunks reports the file's I/O-coalescing boundaries (at most one chunk
// per boundary scale, each covering codeblocks of that scale only; see
// buildChunks), for a remote streamer
// to batch range requests against instead of fetching each codeblock
// individually.
func (img *Image) Chunks() []Chunk { return img.chunks }

func (img *Image) tileWH() (int, int) {
	return img.header.TileWidth, img.header.TileHeight
}

// TileSize reports the tile width and height shared across all scales.
func (img *Image) TileSize() (int, int) { return img.tileWH() }

func (img *Image) getOrCreateTile(scale, x, y int) *Tile {
	key := [3]int{scale, x, y}
	t, ok := img.tiles[key]
	if !ok {
		t = &Tile{X: x, Y: y, Scale: scale}
		img.tiles[key] = t
	}
	return t
}

func (img *Image) neighborsOf(scale, x, y int, colour Colour) [8]*TileChannel {
	var out [8]*TileChannel
	offsets := [8][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}
	for i, off := range offsets {
		nx, ny := x+off[0], y+off[1]
		if t, ok := img.tiles[[3]int{scale, nx, ny}]; ok {
			out[i] = &t.Channels[colour]
		}
	}
	return out
}

// readCodeblockBytes fetches one codeblock's raw payload bytes via the
// image's byte source.
func (img *Image) readCodeblockBytes(ctx context.Context, cb Codeblock) ([]byte, error) {
	if cb.Size <= 0 {
		return nil, nil
	}
	dst := make([]byte, cb.Size)
	_, err := img.src.ReadAt(ctx, cb.Offset, dst)
	return dst, err
}

// decodeChannelAt decodes (or retrieves, for a donated LL) the LL and H
// bands for one colour at one tile, reconstructs this tile's IDWT, and
// donates the result as the LL input for its four children at scale-1.
func (img *Image) decodeChannelAt(ctx context.Context, scale, x, y int, colour Colour, version HulskenVersion) error {
	tileW, tileH := img.tileWH()
	tile := img.getOrCreateTile(scale, x, y)
	ch := &tile.Channels[colour]

	if !ch.hasLL {
		if cb, ok := img.blocks[blockKey{scale: scale, x: x, y: y, colour: colour, kind: CoeffLL}]; ok {
			raw, err := img.readCodeblockBytes(ctx, cb)
			if err != nil {
				return err
			}
			coeffs, err := DecompressCodeblock(raw, tileW, tileH, CoeffLL, version)
			if err != nil {
				return err
			}
			ll := make([]int32, len(coeffs))
			for i, v := range coeffs {
				ll[i] = int32(v)
			}
			ch.CoeffLL = ll
			ch.hasLL = true
		}
	}

	if !ch.hasH {
		if cb, ok := img.blocks[blockKey{scale: scale, x: x, y: y, colour: colour, kind: CoeffH}]; ok {
			raw, err := img.readCodeblockBytes(ctx, cb)
			if err != nil {
				return err
			}
			coeffs, err := DecompressCodeblock(raw, tileW, tileH, CoeffH, version)
			if err != nil {
				return err
			}
			h := make([]int32, len(coeffs))
			for i, v := range coeffs {
				h[i] = int32(v)
			}
			ch.CoeffH = h
			ch.hasH = true
		}
	}

	if !ch.hasLL || !ch.hasH || scale == 0 {
		return nil
	}

	neighbors := img.neighborsOf(scale, x, y, colour)
	quads := ReconstructTile(colour, tileW, tileH, ch, neighbors)

	childScale := scale - 1
	childCoords := [4][2]int{{2 * x, 2 * y}, {2*x + 1, 2 * y}, {2 * x, 2*y + 1}, {2*x + 1, 2*y + 1}}
	for i, cc := range childCoords {
		child := img.getOrCreateTile(childScale, cc[0], cc[1])
		child.Channels[colour].CoeffLL = quads[i]
		child.Channels[colour].hasLL = true
	}

	return nil
}

// EnsureBootstrap synchronously decodes the top three pyramid scales
// (topScale, topScale-1, topScale-2): until this completes, no tile at
// any lower scale can be reconstructed, because LL coefficients cascade
// down from the top.
func (img *Image) EnsureBootstrap(ctx context.Context) error {
	if img.bootstrapped {
		return nil
	}
	for scale := img.topScale; scale >= 0 && scale > img.topScale-3; scale-- {
		for key := range img.blocks {
			if key.scale != scale {
				continue
			}
			if err := img.decodeChannelAt(ctx, scale, key.x, key.y, key.colour, HulskenV1); err != nil {
				return err
			}
		}
	}
	img.bootstrapped = true
	return nil
}

// DecodeTile produces one tile's BGRA8 pixels at the given scale,
// decoding its three colour channels (and cascading LL donation to its
// children) if not already complete. Returns ErrNeighborMissing if the
// tile's LL input has not yet arrived from its parent.
func (img *Image) DecodeTile(ctx context.Context, scale, x, y int) ([]byte, error) {
	tileW, tileH := img.tileWH()
	for _, colour := range [3]Colour{ColourY, ColourCo, ColourCg} {
		if err := img.decodeChannelAt(ctx, scale, x, y, colour, HulskenV1); err != nil {
			return nil, err
		}
	}

	tile := img.getOrCreateTile(scale, x, y)
	for _, colour := range [3]Colour{ColourY, ColourCo, ColourCg} {
		if !tile.Channels[colour].hasLL {
			return nil, ErrNeighborMissing
		}
	}

	y0 := append([]int32(nil), tile.Channels[ColourY].CoeffLL...)
	AbsoluteValue(y0)
	rgba := CombineYCoCgToBGRA(y0, tile.Channels[ColourCo].CoeffLL, tile.Channels[ColourCg].CoeffLL, tileW, tileH)
	tile.RGBA = rgba
	tile.Ready = true
	return rgba, nil
}
