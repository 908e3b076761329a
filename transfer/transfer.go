// Package transfer defines a pixel transfer surface that decoded tile
// pixels can be handed to once a decode completes (package streamer does
// not call it; it stores decoded pixels in the cache): uploading to a GPU
// texture, or any other presentation surface, is outside this module's
// scope (it belongs to whatever rendering stack embeds wsicore), so this
// package exposes only the handoff contract and a no-op implementation
// suitable for headless use (CLI region exports, tests, servers).
package transfer

import "context"

// Surface receives decoded tile pixels and is responsible for whatever
// happens next (GPU texture upload, framebuffer blit, on-disk cache).
// Implementations must not block the caller for longer than a texture
// upload normally takes; long-running work should be queued internally.
type Surface interface {
	// Upload hands one tile's BGRA8 pixels to the surface. handle is an
	// opaque identifier the surface may later use to evict or replace the
	// texture (e.g. a GPU texture handle or framebuffer index).
	Upload(ctx context.Context, level, tileX, tileY int, pixels []byte, width, height int) (handle uintptr, err error)

	// Evict releases whatever resource Upload allocated for handle.
	Evict(ctx context.Context, handle uintptr) error
}

// NullSurface discards uploads; it is the default Surface for headless
// callers (region export, tests) that only need pixels to reach the
// cache, never a screen.
type NullSurface struct{}

func (NullSurface) Upload(ctx context.Context, level, tileX, tileY int, pixels []byte, width, height int) (uintptr, error) {
	return 0, nil
}

func (NullSurface) Evict(ctx context.Context, handle uintptr) error { return nil }
