// Package slide defines the backend-independent image model a whole
// slide viewer operates on: the pyramid of LevelImages, per-tile
// lifecycle state, and the camera/zoom state the tile streamer consumes
// each frame. Image itself is a sum type over the four backends (TIFF,
// OpenSlide, iSyntax, Simple); see image.go.
package slide

import (
	"math"
	"time"
)

// MaxLevelCount bounds how many pyramid levels an Image may report.
const MaxLevelCount = 16

// PixelFormat selects the output layout read_region fills dst with.
type PixelFormat int

const (
	FormatBGRA8 PixelFormat = iota
	FormatF32Y              // luminance, float32 per sample
)

// TileState is a Tile's position in its requested -> in-flight ->
// decoded -> cached -> evicted lifecycle.
type TileState int

const (
	TileEmpty TileState = iota
	TileRequested
	TileInFlight
	TileDecoded
	TileCached
	TileEvicted
)

// Tile is one pyramid tile's viewer-facing state. A tile can be both
// cached and GPU-resident; eviction must never free Pixels while a
// decode task is still writing them (guarded by IsSubmittedForLoading).
type Tile struct {
	State TileState

	IsEmpty              bool
	IsCached             bool
	IsSubmittedForLoading bool
	NeedKeepInCache      bool
	NeedGPUResidency     bool

	Pixels    []byte // owned while cached; nil once evicted or handed to the GPU
	GPUHandle uintptr

	TimeLastDrawn time.Time
}

// LevelImage is one pyramid level's geometry and tile grid.
type LevelImage struct {
	Exists bool // a requested level may be missing; render by upscaling a lower level

	DownsampleFactor int // 2^level
	WidthInTiles     int
	HeightInTiles    int
	TileWidth        int
	TileHeight       int
	UmPerPixelX      float64
	UmPerPixelY      float64
	TileSideInUmX    float64
	TileSideInUmY    float64
	OriginOffsetX    float64
	OriginOffsetY    float64

	Tiles []Tile // length WidthInTiles * HeightInTiles
}

// TileAt returns a pointer to the tile at the given grid coordinate, or
// nil if it is out of range.
func (l *LevelImage) TileAt(tx, ty int) *Tile {
	if tx < 0 || ty < 0 || tx >= l.WidthInTiles || ty >= l.HeightInTiles {
		return nil
	}
	return &l.Tiles[ty*l.WidthInTiles+tx]
}

// ZoomState is the viewer's continuous zoom position.
type ZoomState struct {
	Pos              float64 // continuous; level = floor(Pos)
	PixelWidth       float64
	PixelHeight      float64
	BasePixelWidth   float64
	BasePixelHeight  float64
}

// Level returns the discrete pyramid level this zoom state samples from.
func (z ZoomState) Level() int {
	l := int(z.Pos)
	if l < 0 {
		return 0
	}
	return l
}

// DownsampleFactor is 2^Pos, kept continuous for smooth zoom
// interpolation between discrete levels.
func (z ZoomState) DownsampleFactor() float64 {
	return math.Exp2(z.Pos)
}

// CropBounds optionally restricts the visible region to a sub-rectangle
// of the image, in microns.
type CropBounds struct {
	X0, Y0, X1, Y1 float64
}

// CameraBounds is the visible viewport in microns.
type CameraBounds struct {
	X0, Y0, X1, Y1 float64
}

// Scene is the read-only per-frame snapshot the tile streamer consumes;
// the viewer thread owns the mutable original and copies this under a
// brief lock each frame.
type Scene struct {
	Camera CameraBounds
	Zoom   ZoomState
	Crop   *CropBounds // nil when uncropped
}
