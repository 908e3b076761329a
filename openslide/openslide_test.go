package openslide

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateLibraryNamesMatchesCurrentOS(t *testing.T) {
	names := candidateLibraryNames()
	assert.NotEmpty(t, names)
	switch runtime.GOOS {
	case "darwin":
		assert.Contains(t, names, "libopenslide.0.dylib")
	case "windows":
		assert.Contains(t, names, "libopenslide-1.dll")
	default:
		assert.Contains(t, names, "libopenslide.so.1")
	}
}

func TestSlideMethodsAreSafeOnZeroHandle(t *testing.T) {
	s := &Slide{}
	assert.Equal(t, 0, s.LevelCount())
	assert.Equal(t, "", s.PropertyValue("openslide.mpp-x"))
	assert.NoError(t, s.Close())

	err := s.ReadRegion(context.Background(), 0, 0, 0, 4, 4, make([]byte, 4*4*4))
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestReadRegionChecksHandleBeforeDestinationSize(t *testing.T) {
	// handle is zero and dst is undersized: ReadRegion runs its
	// zero-handle guard before the size check, so ErrNotOpen wins.
	s := &Slide{}
	err := s.ReadRegion(context.Background(), 0, 0, 0, 4, 4, make([]byte, 2))
	assert.ErrorIs(t, err, ErrNotOpen)
}
