package streamer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/cache"
	"github.com/pathviewer/wsicore/queue"
	"github.com/pathviewer/wsicore/slide"
)

type memSource struct{ buf []byte }

func (m *memSource) ReadAt(_ context.Context, offset int64, dst []byte) (int, error) {
	if offset >= int64(len(m.buf)) {
		return 0, nil
	}
	n := copy(dst, m.buf[offset:])
	return n, nil
}

func (m *memSource) ReadBatch(ctx context.Context, ranges []bytesource.Range) ([]byte, error) {
	return bytesource.ReadBatchSequential(ctx, m, ranges)
}

func (m *memSource) Close() error { return nil }

func newTestImage(t *testing.T, side int) *slide.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	slideImg, err := slide.Open(context.Background(), &memSource{buf: buf.Bytes()}, slide.OpenOptions{})
	require.NoError(t, err)
	return slideImg
}

func TestComputeWishlistPrioritiesAreNonNegative(t *testing.T) {
	img := newTestImage(t, 1024)
	s := New(img, nil, nil, "test", false, DefaultConfig())

	scene := slide.Scene{
		Camera: slide.CameraBounds{X0: 0, Y0: 0, X1: 1024, Y1: 1024},
		Zoom:   slide.ZoomState{Pos: 0},
	}
	wishlist := s.computeWishlist(scene)
	require.NotEmpty(t, wishlist)

	// All entries are at the single available level (defaultTileSide
	// fallback makes this one 4x4 tile grid); none should have negative
	// priority.
	for _, w := range wishlist {
		assert.GreaterOrEqual(t, w.priority, 0.0)
	}
}

func TestComputeWishlistSkipsAlreadyCachedTiles(t *testing.T) {
	img := newTestImage(t, 512)
	c := cache.New(1 << 20)
	s := New(img, nil, c, "test", false, DefaultConfig())

	scene := slide.Scene{
		Camera: slide.CameraBounds{X0: 0, Y0: 0, X1: 512, Y1: 512},
		Zoom:   slide.ZoomState{Pos: 0},
	}

	before := s.computeWishlist(scene)
	require.NotEmpty(t, before)

	// Flag the first candidate's Tile as cached. computeWishlist consults
	// only the Tile struct's own flags, not the cache, so the next wishlist
	// must leave that tile out.
	lvl := &img.Levels[before[0].level]
	tile := lvl.TileAt(before[0].tileX, before[0].tileY)
	require.NotNil(t, tile)
	tile.IsCached = true

	after := s.computeWishlist(scene)
	for _, w := range after {
		assert.False(t, w.level == before[0].level && w.tileX == before[0].tileX && w.tileY == before[0].tileY)
	}
}

func TestShouldBatchThisFrameFiresEveryNthFrame(t *testing.T) {
	img := newTestImage(t, 64)
	cfg := DefaultConfig()
	cfg.BatchEveryNFrames = 5
	s := New(img, nil, nil, "test", true, cfg)

	var fired int
	for i := 0; i < 10; i++ {
		s.frameCount++
		if s.ShouldBatchThisFrame() {
			fired++
		}
	}
	assert.Equal(t, 2, fired) // frames 5 and 10
}

func TestTickSubmitsAndDrainsTiles(t *testing.T) {
	img := newTestImage(t, 256)
	c := cache.New(1 << 20)
	pool := queue.NewPool(context.Background(), 2, 16)
	s := New(img, pool, c, "test", false, DefaultConfig())

	scene := slide.Scene{
		Camera: slide.CameraBounds{X0: 0, Y0: 0, X1: 256, Y1: 256},
		Zoom:   slide.ZoomState{Pos: 0},
	}

	var ready []cache.Key
	deadline := 20
	for i := 0; i < deadline && len(ready) == 0; i++ {
		ready = append(ready, s.Tick(context.Background(), scene)...)
	}
	require.NotEmpty(t, ready)
	status, pixels := c.Lookup(ready[0])
	assert.Equal(t, cache.Ready, status)
	assert.NotEmpty(t, pixels)
}

func TestTickRemoteBatchesPrefetchWithoutErroringOnUnsupportedBackend(t *testing.T) {
	// The Simple backend (this fixture falls through to it) has no
	// tilePrefetcher support, so PrefetchTiles is a no-op; Tick must
	// still decode and cache tiles normally on the remote path.
	img := newTestImage(t, 256)
	c := cache.New(1 << 20)
	pool := queue.NewPool(context.Background(), 2, 16)
	cfg := DefaultConfig()
	cfg.BatchEveryNFrames = 1
	s := New(img, pool, c, "test-remote", true, cfg)

	scene := slide.Scene{
		Camera: slide.CameraBounds{X0: 0, Y0: 0, X1: 256, Y1: 256},
		Zoom:   slide.ZoomState{Pos: 0},
	}

	var ready []cache.Key
	for i := 0; i < 20 && len(ready) == 0; i++ {
		ready = append(ready, s.Tick(context.Background(), scene)...)
	}
	require.NotEmpty(t, ready)
}

func TestPrefetchBatchDoesNotPanicOnUnsupportedBackend(t *testing.T) {
	img := newTestImage(t, 256)
	s := New(img, nil, nil, "test", true, Config{TileLoadBatchMax: 2})

	wishlist := []wishlistEntry{
		{level: 0, tileX: 0, tileY: 0},
		{level: 0, tileX: 1, tileY: 0},
		{level: 0, tileX: 2, tileY: 0}, // beyond TileLoadBatchMax, dropped
		{level: 1, tileX: 0, tileY: 0},
	}
	// No backend support for prefetching on this fixture; this only
	// exercises that the grouping logic runs without panicking on an
	// unsupported backend. The per-level cap is not observed here.
	s.prefetchBatch(context.Background(), wishlist)
}
