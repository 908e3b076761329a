package slide

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/pathviewer/wsicore/bytesource"
)

// simpleBackend is the fallback single-level decoder for images that
// aren't pyramid-tiled at all: standalone macro/label photos, thumbnail
// JPEGs, and anything else stdlib's image.Decode (plus the registered
// x/image codecs) can open. The whole image is decoded eagerly into
// memory, the same eager-decode tradeoff any unsupported-format fallback
// makes.
type simpleBackend struct {
	img    image.Image
	mppX   float64
	mppY   float64
}

// sourceReader adapts a bytesource.Source to io.Reader by reading
// forward in fixed-size chunks; ReadAt's own error becomes io.EOF at the
// first short or failed read, since simpleBackend only ever needs one
// sequential pass to hand to image.Decode.
type sourceReader struct {
	ctx    context.Context
	src    bytesource.Source
	offset int64
}

const sourceReaderChunk = 64 * 1024

func (r *sourceReader) Read(p []byte) (int, error) {
	if len(p) > sourceReaderChunk {
		p = p[:sourceReaderChunk]
	}
	n, err := r.src.ReadAt(r.ctx, r.offset, p)
	r.offset += int64(n)
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	return n, nil
}

func newSimpleBackend(ctx context.Context, src bytesource.Source) (*simpleBackend, error) {
	img, _, err := image.Decode(&sourceReader{ctx: ctx, src: src})
	if err != nil {
		return nil, fmt.Errorf("slide: simple backend: %w", err)
	}
	return &simpleBackend{img: img, mppX: 1.0, mppY: 1.0}, nil
}

func (b *simpleBackend) levelCount() int { return 1 }

func (b *simpleBackend) dimensions() (int64, int64) {
	bounds := b.img.Bounds()
	return int64(bounds.Dx()), int64(bounds.Dy())
}

func (b *simpleBackend) micronsPerPixel() (float64, float64) { return b.mppX, b.mppY }

func (b *simpleBackend) readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error {
	if level != 0 {
		return ErrLevelUnavailable
	}
	bounds := b.img.Bounds()
	for row := 0; row < h; row++ {
		sy := bounds.Min.Y + y + row
		for col := 0; col < w; col++ {
			sx := bounds.Min.X + x + col
			di := (row*w + col) * 4
			if sx < bounds.Min.X || sx >= bounds.Max.X || sy < bounds.Min.Y || sy >= bounds.Max.Y {
				dst[di], dst[di+1], dst[di+2], dst[di+3] = 0, 0, 0, 0
				continue
			}
			r, g, bl, a := b.img.At(sx, sy).RGBA()
			dst[di+0] = byte(bl >> 8)
			dst[di+1] = byte(g >> 8)
			dst[di+2] = byte(r >> 8)
			dst[di+3] = byte(a >> 8)
		}
	}
	return nil
}

func (b *simpleBackend) close() error { return nil }
