// Package openslide binds libopenslide via dlopen, so the OpenSlide
// backend needs no cgo toolchain: ebitengine/purego resolves the shared
// library at runtime and calls into it through Go function values bound
// with RegisterLibFunc, the same pattern purego documents for wrapping
// any C ABI.
package openslide

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

var ErrNotOpen = errors.New("openslide: handle not open")

// candidateLibraryNames lists the shared-library names purego.Dlopen is
// tried against, in order, until one loads.
func candidateLibraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libopenslide.0.dylib", "libopenslide.dylib"}
	case "windows":
		return []string{"libopenslide-1.dll", "libopenslide-0.dll"}
	default:
		return []string{"libopenslide.so.1", "libopenslide.so.0", "libopenslide.so"}
	}
}

// library holds the dlopen handle and the bound function pointers. It is
// process-global and lazily initialised, since there is exactly one
// libopenslide to load regardless of how many slides are open.
type library struct {
	handle uintptr

	detectVendor     func(string) string
	open             func(string) uintptr
	close_           func(uintptr)
	getLevelCount    func(uintptr) int32
	getLevelDims     func(uintptr, int32, *int64, *int64)
	getLevelDownsample func(uintptr, int32) float64
	readRegion       func(uintptr, unsafe.Pointer, int64, int64, int32, int64, int64)
	getError         func(uintptr) string
	getPropertyValue func(uintptr, string) string
}

var lib *library

// ensureLibrary loads libopenslide on first use and binds the subset of
// its C API the OpenSlide backend needs.
func ensureLibrary() (*library, error) {
	if lib != nil {
		return lib, nil
	}
	var handle uintptr
	var lastErr error
	for _, name := range candidateLibraryNames() {
		h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			handle = h
			break
		}
		lastErr = err
	}
	if handle == 0 {
		return nil, fmt.Errorf("openslide: loading libopenslide: %w", lastErr)
	}

	l := &library{handle: handle}
	purego.RegisterLibFunc(&l.detectVendor, handle, "openslide_detect_vendor")
	purego.RegisterLibFunc(&l.open, handle, "openslide_open")
	purego.RegisterLibFunc(&l.close_, handle, "openslide_close")
	purego.RegisterLibFunc(&l.getLevelCount, handle, "openslide_get_level_count")
	purego.RegisterLibFunc(&l.getLevelDims, handle, "openslide_get_level_dimensions")
	purego.RegisterLibFunc(&l.getLevelDownsample, handle, "openslide_get_level_downsample")
	purego.RegisterLibFunc(&l.readRegion, handle, "openslide_read_region")
	purego.RegisterLibFunc(&l.getError, handle, "openslide_get_error")
	purego.RegisterLibFunc(&l.getPropertyValue, handle, "openslide_get_property_value")
	lib = l
	return l, nil
}

// Slide wraps one openslide_t handle.
type Slide struct {
	lib    *library
	handle uintptr
}

// Open opens path with libopenslide. OpenSlide's own format sniffing
// decides whether the file is a recognised vendor format; callers should
// only reach this backend after ruling out TIFF and iSyntax.
func Open(ctx context.Context, path string) (*Slide, error) {
	l, err := ensureLibrary()
	if err != nil {
		return nil, err
	}
	h := l.open(path)
	if h == 0 {
		return nil, fmt.Errorf("openslide: %s: open returned null", path)
	}
	s := &Slide{lib: l, handle: h}
	if msg := l.getError(h); msg != "" {
		s.Close()
		return nil, fmt.Errorf("openslide: %s: %s", path, msg)
	}
	return s, nil
}

// LevelCount reports how many levels OpenSlide exposes for this slide.
func (s *Slide) LevelCount() int {
	if s.handle == 0 {
		return 0
	}
	return int(s.lib.getLevelCount(s.handle))
}

// LevelDimensions reports a level's full pixel dimensions.
func (s *Slide) LevelDimensions(level int) (int64, int64) {
	var w, h int64
	s.lib.getLevelDims(s.handle, int32(level), &w, &h)
	return w, h
}

// LevelDownsample reports a level's downsample factor relative to level 0.
func (s *Slide) LevelDownsample(level int) float64 {
	return s.lib.getLevelDownsample(s.handle, int32(level))
}

// ReadRegion decodes a w x h BGRA32 region at (x, y) in level-0
// coordinates, at the given level, into dst (len == w*h*4).
func (s *Slide) ReadRegion(ctx context.Context, level int, x, y int64, w, h int, dst []byte) error {
	if s.handle == 0 {
		return ErrNotOpen
	}
	if len(dst) < w*h*4 {
		return fmt.Errorf("openslide: dst too small: need %d, have %d", w*h*4, len(dst))
	}
	s.lib.readRegion(s.handle, unsafe.Pointer(&dst[0]), x, y, int32(level), int64(w), int64(h))
	if msg := s.lib.getError(s.handle); msg != "" {
		return fmt.Errorf("openslide: read_region: %s", msg)
	}
	return nil
}

// PropertyValue looks up one of OpenSlide's vendor metadata properties,
// e.g. "openslide.mpp-x".
func (s *Slide) PropertyValue(name string) string {
	if s.handle == 0 {
		return ""
	}
	return s.lib.getPropertyValue(s.handle, name)
}

// Close releases the openslide_t handle.
func (s *Slide) Close() error {
	if s.handle == 0 {
		return nil
	}
	s.lib.close_(s.handle)
	s.handle = 0
	return nil
}
