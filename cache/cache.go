// Package cache implements the byte-budget tile cache: an associative
// container keyed by (image ID, level, tile X, tile Y) that enforces a
// capacity in bytes, single-flight decode deduplication, and
// least-recently-drawn eviction that never reclaims a tile currently
// being decoded or pinned with KeepInCache.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"
)

// Key addresses one cached tile.
type Key struct {
	ImageID string
	Level   int
	TileX   int
	TileY   int
}

func (k Key) hash() uint64 {
	var buf [24]byte
	h := xxhash.New()
	h.WriteString(k.ImageID)
	le := func(v int) {
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		buf[2] = byte(v >> 16)
		buf[3] = byte(v >> 24)
		h.Write(buf[:4])
	}
	le(k.Level)
	le(k.TileX)
	le(k.TileY)
	return h.Sum64()
}

// Status is the outcome of a Lookup.
type Status int

const (
	Missing Status = iota
	InFlight
	Ready
)

type entry struct {
	pixels        []byte
	bytes         int64
	lastDrawn     time.Time
	keepInCache   bool
	inFlight      bool
}

// Cache is a byte-budget LRU-by-draw-time tile cache. The zero value is
// not usable; construct with New.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	entries  map[Key]*entry
	group    singleflight.Group
}

// New creates a cache bounded to capacityBytes total pixel-buffer bytes.
func New(capacityBytes int64) *Cache {
	return &Cache{capacity: capacityBytes, entries: make(map[Key]*entry)}
}

// Lookup reports whether a tile is cached, in flight, or missing, and
// returns its pixel buffer when Ready.
func (c *Cache) Lookup(key Key) (Status, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Missing, nil
	}
	if e.inFlight {
		return InFlight, nil
	}
	return Ready, e.pixels
}

// MarkInflight records that a decode for key has been submitted, so
// concurrent callers see InFlight rather than re-submitting (invariant:
// at most one decode task runs per key at a time).
func (c *Cache) MarkInflight(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = &entry{inFlight: true}
	} else {
		c.entries[key].inFlight = true
	}
}

// Insert stores a decoded tile's pixels, evicting older entries first if
// the budget would be exceeded.
func (c *Cache) Insert(key Key, pixels []byte, keepInCache bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.used -= old.bytes
	}
	e := &entry{
		pixels:      pixels,
		bytes:       int64(len(pixels)),
		lastDrawn:   time.Now(),
		keepInCache: keepInCache,
	}
	c.entries[key] = e
	c.used += e.bytes

	c.evictLocked()
}

// MarkDrawn updates a tile's last-draw time, the recency signal eviction
// uses to choose victims.
func (c *Cache) MarkDrawn(key Key, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.lastDrawn = at
	}
}

// evictLocked frees the oldest-drawn, non-pinned, non-in-flight entries
// until used is within capacity. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for c.used > c.capacity {
		var victim Key
		var victimEntry *entry
		for k, e := range c.entries {
			if e.inFlight || e.keepInCache {
				continue
			}
			if victimEntry == nil || e.lastDrawn.Before(victimEntry.lastDrawn) {
				victim = k
				victimEntry = e
			}
		}
		if victimEntry == nil {
			return // nothing evictable (all pinned or in flight)
		}
		c.used -= victimEntry.bytes
		delete(c.entries, victim)
		slog.Debug("cache: evicted tile",
			slog.String("image_id", victim.ImageID),
			slog.Int("level", victim.Level),
			slog.Int("tile_x", victim.TileX),
			slog.Int("tile_y", victim.TileY),
			slog.String("freed", humanizeBytes(victimEntry.bytes)),
			slog.String("used", humanizeBytes(c.used)),
			slog.String("capacity", humanizeBytes(c.capacity)))
	}
}

// EvictUntil forces the cache down to maxBytes, for tests and explicit
// memory-pressure callbacks.
func (c *Cache) EvictUntil(maxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	saved := c.capacity
	c.capacity = maxBytes
	c.evictLocked()
	c.capacity = saved
}

// UsedBytes reports current occupancy, for metrics and logging (e.g.
// humanize.Bytes(uint64(cache.UsedBytes())) in a log line).
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// humanizeBytes renders a byte count for eviction/occupancy log lines.
func humanizeBytes(n int64) string { return humanize.Bytes(uint64(n)) }

// Ensure runs decode exactly once per key even under concurrent callers,
// using singleflight so 99 callers requesting the same tile block on the
// one in-flight decode and receive its result.
func (c *Cache) Ensure(ctx context.Context, key Key, keepInCache bool, decode func(context.Context) ([]byte, error)) ([]byte, error) {
	if status, pixels := c.Lookup(key); status == Ready {
		return pixels, nil
	}

	c.MarkInflight(key)
	shared := strKey(key)
	v, err, _ := c.group.Do(shared, func() (interface{}, error) {
		pixels, err := decode(ctx)
		if err != nil {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
			return nil, err
		}
		c.Insert(key, pixels, keepInCache)
		return pixels, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func strKey(key Key) string {
	h := key.hash()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
	return string(buf[:])
}
