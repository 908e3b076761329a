package slide

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/isyntax"
	"github.com/pathviewer/wsicore/openslide"
	"github.com/pathviewer/wsicore/tiff"
)

// pathSource is satisfied by byte sources backed by an on-disk file;
// OpenSlide's C API only takes a path, not a byte-range interface, so
// that backend is only reachable when src implements this.
type pathSource interface {
	Path() string
}

// Backend tags the concrete decoder an Image wraps.
type Backend int

const (
	BackendTiff Backend = iota
	BackendOpenSlide
	BackendIsyntax
	BackendSimple
)

var (
	ErrUnsupportedFormat = errors.New("slide: unsupported image format")
	ErrLevelUnavailable  = errors.New("slide: no level available to satisfy request")
)

// regionReader is the common operation set every backend implements;
// Image dispatches to whichever one it wraps with a type switch rather
// than a dynamic vtable, since the backend set is closed.
type regionReader interface {
	levelCount() int
	dimensions() (int64, int64)
	micronsPerPixel() (float64, float64)
	readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error
	close() error
}

// Image is the backend-independent handle the rest of the viewer holds:
// a TIFF pyramid, an OpenSlide-backed file, an iSyntax container, or a
// Simple single-level fallback, addressed through one operation set.
type Image struct {
	// ID identifies this open handle across the remote tile protocol and
	// in cache keys; generated fresh on every Open call so the same file
	// opened twice doesn't collide in a shared cache.
	ID      string
	Backend Backend
	backend regionReader

	Levels []LevelImage
}

// Open inspects the byte source and picks a backend: iSyntax files start
// with an XML header (detected by probing for the '<' byte before any
// TIFF magic), TIFF/BigTIFF files start with "II"/"MM", anything else
// is tried with OpenSlide when src is file-backed (implements Path) and
// otherwise, or when OpenSlide fails, falls back to the Simple
// single-level decoder.
func Open(ctx context.Context, src bytesource.Source, opts OpenOptions) (*Image, error) {
	probe := make([]byte, 8)
	if _, err := src.ReadAt(ctx, 0, probe); err != nil {
		return nil, fmt.Errorf("slide: probing header: %w", err)
	}

	switch {
	case probe[0] == 'I' && probe[1] == 'I', probe[0] == 'M' && probe[1] == 'M':
		return openTiff(ctx, src, opts)
	case probe[0] == '<' || probe[0] == 0xEF: // '<' or a UTF-8 BOM before the XML declaration
		return openIsyntax(ctx, src, opts)
	default:
		if ps, ok := src.(pathSource); ok {
			if img, err := openOpenSlide(ctx, ps.Path()); err == nil {
				return img, nil
			}
		}
		return openSimple(ctx, src, opts)
	}
}

// OpenOptions carries the per-backend tunables a caller may want to
// override; zero value uses each backend's own defaults.
type OpenOptions struct {
	Tiff tiff.Options
}

func openTiff(ctx context.Context, src bytesource.Source, opts OpenOptions) (*Image, error) {
	r, err := tiff.Open(ctx, src, opts.Tiff)
	if err != nil {
		return nil, err
	}
	img := &Image{ID: uuid.NewString(), Backend: BackendTiff, backend: &tiffBackend{r: r}}
	img.buildLevels()
	return img, nil
}

func openIsyntax(ctx context.Context, src bytesource.Source, opts OpenOptions) (*Image, error) {
	const probeSize = 4 << 20 // XML headers observed in the wild stay well under this
	probe := make([]byte, probeSize)
	n, err := src.ReadAt(ctx, 0, probe)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("slide: reading isyntax header: %w", err)
	}
	r, err := isyntax.Open(ctx, src, probe[:n])
	if err != nil {
		return nil, err
	}
	img := &Image{ID: uuid.NewString(), Backend: BackendIsyntax, backend: &isyntaxBackend{r: r}}
	img.buildLevels()
	return img, nil
}

func openOpenSlide(ctx context.Context, path string) (*Image, error) {
	s, err := openslide.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	img := &Image{ID: uuid.NewString(), Backend: BackendOpenSlide, backend: &openslideBackend{s: s}}
	img.buildLevels()
	return img, nil
}

func openSimple(ctx context.Context, src bytesource.Source, opts OpenOptions) (*Image, error) {
	r, err := newSimpleBackend(ctx, src)
	if err != nil {
		return nil, err
	}
	img := &Image{ID: uuid.NewString(), Backend: BackendSimple, backend: r}
	img.buildLevels()
	return img, nil
}

// tileSizer is implemented by backends that decode in fixed-size tiles
// (TIFF, iSyntax); backends without a native tile grid (OpenSlide,
// Simple) report the viewer's nominal 256x256 instead.
type tileSizer interface {
	tileSize() (int, int)
}

const defaultTileSide = 256

// buildLevels populates the LevelImage pyramid descriptor from the
// backend's reported level count and base resolution, per the
// "um_per_pixel == mpp * 2^level" invariant.
func (img *Image) buildLevels() {
	n := img.backend.levelCount()
	if n > MaxLevelCount {
		n = MaxLevelCount
	}
	mppX, mppY := img.backend.micronsPerPixel()
	width, height := img.backend.dimensions()

	tw, th := defaultTileSide, defaultTileSide
	if ts, ok := img.backend.(tileSizer); ok {
		if w, h := ts.tileSize(); w > 0 && h > 0 {
			tw, th = w, h
		}
	}

	img.Levels = make([]LevelImage, n)
	for l := 0; l < n; l++ {
		factor := 1 << l
		levelW, levelH := width/int64(factor), height/int64(factor)
		widthInTiles, heightInTiles := 0, 0
		if tw > 0 && th > 0 && levelW > 0 && levelH > 0 {
			widthInTiles = int((levelW + int64(tw) - 1) / int64(tw))
			heightInTiles = int((levelH + int64(th) - 1) / int64(th))
		}
		img.Levels[l] = LevelImage{
			Exists:           true,
			DownsampleFactor: factor,
			TileWidth:        tw,
			TileHeight:       th,
			WidthInTiles:     widthInTiles,
			HeightInTiles:    heightInTiles,
			UmPerPixelX:      mppX * float64(factor),
			UmPerPixelY:      mppY * float64(factor),
			TileSideInUmX:    mppX * float64(factor) * float64(tw),
			TileSideInUmY:    mppY * float64(factor) * float64(th),
			Tiles:            make([]Tile, widthInTiles*heightInTiles),
		}
	}
}

// LevelCount reports how many pyramid levels this image has.
func (img *Image) LevelCount() int { return len(img.Levels) }

// Dimensions reports level-0 pixel dimensions.
func (img *Image) Dimensions() (int64, int64) { return img.backend.dimensions() }

// MicronsPerPixel reports level-0 resolution.
func (img *Image) MicronsPerPixel() (float64, float64) { return img.backend.micronsPerPixel() }

// tilePrefetcher is implemented by backends whose tiles are byte ranges
// in one seekable container, so several can be coalesced into a single
// batched read; only the TIFF backend qualifies today.
type tilePrefetcher interface {
	prefetchTiles(ctx context.Context, level int, tileIndices []int) error
}

// PrefetchTiles coalesces the raw bytes backing several tiles at one
// pyramid level into a single batched read when the backend supports it.
// Backends without a native tile-range concept (OpenSlide, Simple) are a
// silent no-op, since their region reads can't be coalesced this way.
func (img *Image) PrefetchTiles(ctx context.Context, level int, tileXY [][2]int) error {
	if level < 0 || level >= len(img.Levels) || !img.Levels[level].Exists {
		return nil
	}
	tp, ok := img.backend.(tilePrefetcher)
	if !ok {
		return nil
	}
	tilesAcross := img.Levels[level].WidthInTiles
	if tilesAcross <= 0 {
		return nil
	}
	indices := make([]int, 0, len(tileXY))
	for _, xy := range tileXY {
		indices = append(indices, xy[1]*tilesAcross+xy[0])
	}
	return tp.prefetchTiles(ctx, level, indices)
}

// ReadRegion decodes a w x h region of pixels at the given level and
// pixel origin. Every backend writes BGRA8; format is not consulted, so
// FormatF32Y output is not produced. If level does not exist, the dispatcher falls
// back to the nearest lower existing level rather than failing outright.
func (img *Image) ReadRegion(ctx context.Context, level, x, y, w, h int, dst []byte, format PixelFormat) error {
	resolved := level
	for resolved >= 0 && (resolved >= len(img.Levels) || !img.Levels[resolved].Exists) {
		resolved--
	}
	if resolved < 0 {
		return ErrLevelUnavailable
	}
	return img.backend.readRegion(ctx, resolved, x, y, w, h, dst)
}

// Close releases backend resources.
func (img *Image) Close() error { return img.backend.close() }

// tiffBackend adapts tiff.Reader to the regionReader contract.
type tiffBackend struct{ r *tiff.Reader }

func (b *tiffBackend) levelCount() int { return b.r.LevelCount() }
func (b *tiffBackend) dimensions() (int64, int64) {
	ifd := b.r.Level(0)
	if ifd == nil {
		return 0, 0
	}
	return ifd.ImageWidth, ifd.ImageHeight
}
func (b *tiffBackend) micronsPerPixel() (float64, float64) {
	ifd := b.r.Level(0)
	if ifd == nil {
		return 0, 0
	}
	return ifd.MicronsPerPixel()
}
func (b *tiffBackend) readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error {
	return b.r.ReadRegion(ctx, level, x, y, w, h, dst)
}
func (b *tiffBackend) close() error { return nil }
func (b *tiffBackend) prefetchTiles(ctx context.Context, level int, tileIndices []int) error {
	return b.r.PrefetchTiles(ctx, level, tileIndices)
}
func (b *tiffBackend) tileSize() (int, int) {
	ifd := b.r.Level(0)
	if ifd == nil {
		return 0, 0
	}
	return int(ifd.TileWidth), int(ifd.TileHeight)
}

// isyntaxBackend adapts isyntax.Image to the regionReader contract. Full
// arbitrary-rectangle region reads are implemented tile-by-tile, same as
// the TIFF backend, except a read first ensures bootstrap has completed
// (iSyntax's top-of-pyramid LL cascade).
type isyntaxBackend struct {
	r *isyntax.Image
}

func (b *isyntaxBackend) levelCount() int { return b.r.LevelCount() }
func (b *isyntaxBackend) dimensions() (int64, int64) { return b.r.Dimensions() }
func (b *isyntaxBackend) micronsPerPixel() (float64, float64) { return b.r.MicronsPerPixel() }
// readRegion decodes every tile the requested pixel rectangle overlaps
// and copies the overlapping pixels into dst (row-major BGRA8), the same
// tile-stitching approach as the TIFF backend's ReadRegion.
func (b *isyntaxBackend) readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error {
	if err := b.r.EnsureBootstrap(ctx); err != nil {
		return err
	}
	tw, th := b.r.TileSize()
	if tw == 0 || th == 0 {
		return fmt.Errorf("slide: isyntax backend reports zero tile size")
	}

	firstTileX, firstTileY := x/tw, y/th
	lastTileX, lastTileY := (x+w-1)/tw, (y+h-1)/th

	for ty := firstTileY; ty <= lastTileY; ty++ {
		for tx := firstTileX; tx <= lastTileX; tx++ {
			pixels, err := b.r.DecodeTile(ctx, level, tx, ty)
			if err != nil {
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
					copy(dst[(dy*w+dx)*4:(dy*w+dx)*4+4], pixels[(sy*tw+sx)*4:(sy*tw+sx)*4+4])
				}
			}
		}
	}
	return nil
}
func (b *isyntaxBackend) close() error { return nil }
func (b *isyntaxBackend) tileSize() (int, int) { return b.r.TileSize() }

// openslideBackend adapts openslide.Slide to the regionReader contract.
type openslideBackend struct{ s *openslide.Slide }

func (b *openslideBackend) levelCount() int { return b.s.LevelCount() }
func (b *openslideBackend) dimensions() (int64, int64) { return b.s.LevelDimensions(0) }
func (b *openslideBackend) micronsPerPixel() (float64, float64) {
	var x, y float64
	fmt.Sscanf(b.s.PropertyValue("openslide.mpp-x"), "%g", &x)
	fmt.Sscanf(b.s.PropertyValue("openslide.mpp-y"), "%g", &y)
	return x, y
}
func (b *openslideBackend) readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error {
	return b.s.ReadRegion(ctx, level, int64(x), int64(y), w, h, dst)
}
func (b *openslideBackend) close() error { return b.s.Close() }
