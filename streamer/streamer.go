// Package streamer computes, once per viewer frame, which tiles are
// visible and need loading, submits them to the work queue in priority
// order, and drains completions under a fixed time budget so decode work
// never starves the render thread.
package streamer

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pathviewer/wsicore/cache"
	"github.com/pathviewer/wsicore/queue"
	"github.com/pathviewer/wsicore/slide"
)

// Config tunes the per-frame budget; defaults match the conservative
// client-facing numbers used throughout the rest of this system.
type Config struct {
	MaxTilesLocal   int
	MaxTilesRemote  int
	TileLoadBatchMax int
	BatchEveryNFrames int
	CompletionBudget  time.Duration
}

// DefaultConfig returns the streamer's stock tuning: 10 tiles per frame
// against a local source, 3 against a remote one, batches of up to 32
// range reads coalesced every 5th frame, and a 7ms completion-drain
// budget.
func DefaultConfig() Config {
	return Config{
		MaxTilesLocal:     10,
		MaxTilesRemote:    3,
		TileLoadBatchMax:  32,
		BatchEveryNFrames: 5,
		CompletionBudget:  7 * time.Millisecond,
	}
}

// wishlistEntry is one candidate tile awaiting submission, ranked by
// priority before truncation.
type wishlistEntry struct {
	level, tileX, tileY int
	priority            float64
}

// Streamer drives one Image's tile loading against a Pool and Cache.
type Streamer struct {
	img    *slide.Image
	pool   *queue.Pool
	cache  *cache.Cache
	cfg    Config
	imageID string
	remote bool

	frameCount uint64
	deleted    atomic.Bool

	ready chan cache.Key
}

// New constructs a streamer for one open image. remote selects the
// local/remote tile budget and batching behaviour.
func New(img *slide.Image, pool *queue.Pool, c *cache.Cache, imageID string, remote bool, cfg Config) *Streamer {
	return &Streamer{img: img, pool: pool, cache: c, cfg: cfg, imageID: imageID, remote: remote, ready: make(chan cache.Key, 256)}
}

// Close marks this streamer's outstanding tasks deleted; in-flight tasks
// cooperatively bail rather than being killed outright.
func (s *Streamer) Close() { s.deleted.Store(true) }

// Tick runs one frame: computes the visible-tile wishlist, submits the
// highest-priority entries that aren't already cached or in flight, and
// drains completions into the cache under the per-frame time budget.
func (s *Streamer) Tick(ctx context.Context, scene slide.Scene) []cache.Key {
	s.frameCount++

	wishlist := s.computeWishlist(scene)
	sort.Slice(wishlist, func(i, j int) bool { return wishlist[i].priority > wishlist[j].priority })

	maxTiles := s.cfg.MaxTilesLocal
	if s.remote {
		maxTiles = s.cfg.MaxTilesRemote
	}
	if len(wishlist) > maxTiles {
		wishlist = wishlist[:maxTiles]
	}

	if s.remote && s.ShouldBatchThisFrame() {
		s.prefetchBatch(ctx, wishlist)
	}

	for _, w := range wishlist {
		s.submit(ctx, w)
	}

	return s.drainCompletions()
}

// computeWishlist walks every pyramid level from highest down to the
// lowest visible scale, converting the camera's micron bounds to tile
// index bounds at that level and scoring each not-yet-loaded tile.
func (s *Streamer) computeWishlist(scene slide.Scene) []wishlistEntry {
	lowest := int(math.Floor(scene.Zoom.Pos))
	if lowest < 0 {
		lowest = 0
	}
	highest := s.img.LevelCount() - 1
	if highest < lowest {
		highest = lowest
	}

	centreX := (scene.Camera.X0 + scene.Camera.X1) / 2
	centreY := (scene.Camera.Y0 + scene.Camera.Y1) / 2
	maxDist := math.Hypot(scene.Camera.X1-scene.Camera.X0, scene.Camera.Y1-scene.Camera.Y0) / 2
	if maxDist <= 0 {
		maxDist = 1
	}

	var out []wishlistEntry
	levelCount := s.img.LevelCount()
	for level := highest; level >= lowest; level-- {
		if level >= len(s.img.Levels) || !s.img.Levels[level].Exists {
			continue
		}
		lvl := s.img.Levels[level]
		if lvl.TileSideInUmX <= 0 || lvl.TileSideInUmY <= 0 {
			continue
		}

		x0 := scene.Camera.X0
		x1 := scene.Camera.X1
		y0 := scene.Camera.Y0
		y1 := scene.Camera.Y1
		if scene.Crop != nil {
			x0, x1 = math.Max(x0, scene.Crop.X0), math.Min(x1, scene.Crop.X1)
			y0, y1 = math.Max(y0, scene.Crop.Y0), math.Min(y1, scene.Crop.Y1)
		}

		firstTX := int(math.Floor(x0 / lvl.TileSideInUmX))
		lastTX := int(math.Floor(x1 / lvl.TileSideInUmX))
		firstTY := int(math.Floor(y0 / lvl.TileSideInUmY))
		lastTY := int(math.Floor(y1 / lvl.TileSideInUmY))

		basePriority := float64(levelCount-level) * 100

		for ty := firstTY; ty <= lastTY; ty++ {
			if ty < 0 || (lvl.HeightInTiles > 0 && ty >= lvl.HeightInTiles) {
				continue
			}
			for tx := firstTX; tx <= lastTX; tx++ {
				if tx < 0 || (lvl.WidthInTiles > 0 && tx >= lvl.WidthInTiles) {
					continue
				}
				tile := lvl.TileAt(tx, ty)
				if tile != nil && (tile.IsEmpty || tile.IsSubmittedForLoading || tile.IsCached) {
					continue
				}

				tileCentreX := (float64(tx) + 0.5) * lvl.TileSideInUmX
				tileCentreY := (float64(ty) + 0.5) * lvl.TileSideInUmY
				dist := math.Hypot(tileCentreX-centreX, tileCentreY-centreY)
				normalized := dist / maxDist
				if normalized > 1 {
					normalized = 1
				}
				priority := basePriority + (1-normalized)*300

				out = append(out, wishlistEntry{level: level, tileX: tx, tileY: ty, priority: priority})
			}
		}
	}
	return out
}

// prefetchBatch groups this frame's wishlist by level and issues one
// batched range read per level (capped at TileLoadBatchMax tiles) before
// submit fetches each tile individually for decode, so a remote byte
// source coalesces what would otherwise be one HTTP request per tile.
func (s *Streamer) prefetchBatch(ctx context.Context, wishlist []wishlistEntry) {
	byLevel := make(map[int][][2]int)
	for _, w := range wishlist {
		batch := byLevel[w.level]
		if len(batch) >= s.cfg.TileLoadBatchMax {
			continue
		}
		byLevel[w.level] = append(batch, [2]int{w.tileX, w.tileY})
	}
	for level, tiles := range byLevel {
		_ = s.img.PrefetchTiles(ctx, level, tiles)
	}
}

func (s *Streamer) submit(ctx context.Context, w wishlistEntry) {
	key := cache.Key{ImageID: s.imageID, Level: w.level, TileX: w.tileX, TileY: w.tileY}
	if status, _ := s.cache.Lookup(key); status != cache.Missing {
		return
	}
	s.cache.MarkInflight(key)

	deleted := &s.deleted
	task := queue.TileTask{
		Priority: int(w.priority),
		Deleted:  deleted,
		Run: func(ctx context.Context) error {
			if deleted.Load() {
				return nil
			}
			tw, th := 256, 256
			if w.level < len(s.img.Levels) {
				lvl := s.img.Levels[w.level]
				if lvl.TileWidth > 0 {
					tw, th = lvl.TileWidth, lvl.TileHeight
				}
			}
			dst := make([]byte, tw*th*4)
			if err := s.img.ReadRegion(ctx, w.level, w.tileX*tw, w.tileY*th, tw, th, dst, slide.FormatBGRA8); err != nil {
				return err
			}
			s.cache.Insert(key, dst, false)
			select {
			case s.ready <- key:
			default:
				// completion channel full: the caller is falling behind on
				// GPU uploads; the tile stays correctly cached regardless,
				// it just won't be reported as newly-ready this frame.
			}
			return nil
		},
	}
	_ = s.pool.Submit(task)
}

// drainCompletions pulls whatever tile keys finished decoding since the
// last Tick, under a time budget so an unlucky burst of completions
// can't starve rendering. It also drains up to 64 entries of the pool's
// completion queue and discards them, task errors included; the work
// itself is already reflected in the cache by the time it lands here.
func (s *Streamer) drainCompletions() []cache.Key {
	deadline := time.Now().Add(s.cfg.CompletionBudget)
	s.pool.Drain(64)

	var keys []cache.Key
	for time.Now().Before(deadline) {
		select {
		case k := <-s.ready:
			keys = append(keys, k)
		default:
			return keys
		}
	}
	return keys
}

// ShouldBatchThisFrame reports whether remote range-read coalescing
// should run this frame, per BatchEveryNFrames.
func (s *Streamer) ShouldBatchThisFrame() bool {
	if s.cfg.BatchEveryNFrames <= 0 {
		return true
	}
	return s.frameCount%uint64(s.cfg.BatchEveryNFrames) == 0
}
