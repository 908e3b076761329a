package slide

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal regionReader for exercising Image's dispatch
// logic without a real TIFF/iSyntax/OpenSlide decoder behind it.
type fakeBackend struct {
	levels   int
	width    int64
	height   int64
	mppX     float64
	mppY     float64
	tileW    int
	tileH    int
	reads    []int // levels readRegion was called with
	closed   bool
}

func (f *fakeBackend) levelCount() int                       { return f.levels }
func (f *fakeBackend) dimensions() (int64, int64)            { return f.width, f.height }
func (f *fakeBackend) micronsPerPixel() (float64, float64)   { return f.mppX, f.mppY }
func (f *fakeBackend) close() error                          { f.closed = true; return nil }
func (f *fakeBackend) readRegion(ctx context.Context, level, x, y, w, h int, dst []byte) error {
	f.reads = append(f.reads, level)
	return nil
}

// fakeTiledBackend additionally reports a native tile size, exercising
// the tileSizer optional-interface path in buildLevels.
type fakeTiledBackend struct {
	fakeBackend
}

func (f *fakeTiledBackend) tileSize() (int, int) { return f.tileW, f.tileH }

func TestBuildLevelsUsesDefaultTileSideWithoutTileSizer(t *testing.T) {
	img := &Image{backend: &fakeBackend{levels: 3, width: 1024, height: 1024, mppX: 0.25, mppY: 0.25}}
	img.buildLevels()

	require.Len(t, img.Levels, 3)
	assert.Equal(t, defaultTileSide, img.Levels[0].TileWidth)
	assert.Equal(t, defaultTileSide, img.Levels[0].TileHeight)
	assert.Equal(t, 4, img.Levels[0].WidthInTiles) // 1024/256
	assert.Equal(t, 1, img.Levels[0].DownsampleFactor)
	assert.Equal(t, 2, img.Levels[1].DownsampleFactor)
	assert.InDelta(t, 0.25, img.Levels[0].UmPerPixelX, 1e-9)
	assert.InDelta(t, 0.5, img.Levels[1].UmPerPixelX, 1e-9)
}

func TestBuildLevelsUsesBackendTileSizeWhenAvailable(t *testing.T) {
	img := &Image{backend: &fakeTiledBackend{fakeBackend{levels: 2, width: 512, height: 512, mppX: 0.5, mppY: 0.5, tileW: 128, tileH: 128}}}
	img.buildLevels()

	assert.Equal(t, 128, img.Levels[0].TileWidth)
	assert.Equal(t, 4, img.Levels[0].WidthInTiles) // 512/128
	assert.InDelta(t, 0.5*128, img.Levels[0].TileSideInUmX, 1e-9)
}

func TestBuildLevelsClampsToMaxLevelCount(t *testing.T) {
	img := &Image{backend: &fakeBackend{levels: MaxLevelCount + 5, width: 256, height: 256, mppX: 1, mppY: 1}}
	img.buildLevels()
	assert.Len(t, img.Levels, MaxLevelCount)
}

func TestReadRegionFallsBackToNearestLowerExistingLevel(t *testing.T) {
	fb := &fakeBackend{levels: 3, width: 1024, height: 1024, mppX: 0.25, mppY: 0.25}
	img := &Image{backend: fb}
	img.buildLevels()
	img.Levels[2].Exists = false

	dst := make([]byte, 4)
	err := img.ReadRegion(context.Background(), 2, 0, 0, 1, 1, dst, FormatBGRA8)
	require.NoError(t, err)
	require.Len(t, fb.reads, 1)
	assert.Equal(t, 1, fb.reads[0])
}

func TestReadRegionErrorsWhenNoLevelAvailable(t *testing.T) {
	img := &Image{backend: &fakeBackend{levels: 2, width: 256, height: 256, mppX: 1, mppY: 1}}
	img.buildLevels()
	img.Levels[0].Exists = false
	img.Levels[1].Exists = false

	dst := make([]byte, 4)
	err := img.ReadRegion(context.Background(), 1, 0, 0, 1, 1, dst, FormatBGRA8)
	assert.ErrorIs(t, err, ErrLevelUnavailable)
}

func TestCloseDelegatesToBackend(t *testing.T) {
	fb := &fakeBackend{levels: 1, width: 1, height: 1}
	img := &Image{backend: fb}
	require.NoError(t, img.Close())
	assert.True(t, fb.closed)
}

func TestLevelCountAndDimensionsDelegateToBackend(t *testing.T) {
	fb := &fakeBackend{levels: 4, width: 800, height: 600, mppX: 0.1, mppY: 0.2}
	img := &Image{backend: fb}
	img.buildLevels()

	assert.Equal(t, 4, img.LevelCount())
	w, h := img.Dimensions()
	assert.EqualValues(t, 800, w)
	assert.EqualValues(t, 600, h)
	mppX, mppY := img.MicronsPerPixel()
	assert.InDelta(t, 0.1, mppX, 1e-9)
	assert.InDelta(t, 0.2, mppY, 1e-9)
}

func TestPrefetchTilesNoOpsWhenBackendDoesNotSupportIt(t *testing.T) {
	fb := &fakeBackend{levels: 1, width: 256, height: 256}
	img := &Image{backend: fb}
	img.buildLevels()
	assert.NoError(t, img.PrefetchTiles(context.Background(), 0, [][2]int{{0, 0}}))
}

// fakePrefetchBackend additionally implements tilePrefetcher, recording
// the tile indices it was asked to coalesce.
type fakePrefetchBackend struct {
	fakeTiledBackend
	gotLevel   int
	gotIndices []int
}

func (f *fakePrefetchBackend) prefetchTiles(ctx context.Context, level int, tileIndices []int) error {
	f.gotLevel = level
	f.gotIndices = tileIndices
	return nil
}

func TestPrefetchTilesConvertsTileCoordinatesToIndices(t *testing.T) {
	fb := &fakePrefetchBackend{fakeTiledBackend: fakeTiledBackend{
		fakeBackend: fakeBackend{levels: 1, width: 16, height: 16, tileW: 4, tileH: 4},
	}}
	img := &Image{backend: fb}
	img.buildLevels()
	require.Equal(t, 4, img.Levels[0].WidthInTiles)

	require.NoError(t, img.PrefetchTiles(context.Background(), 0, [][2]int{{1, 0}, {2, 1}}))
	assert.Equal(t, 0, fb.gotLevel)
	assert.Equal(t, []int{1, 1*4 + 2}, fb.gotIndices)
}
