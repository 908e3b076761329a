package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullSurfaceUploadAndEvictAreNoops(t *testing.T) {
	var s Surface = NullSurface{}

	handle, err := s.Upload(context.Background(), 0, 1, 2, []byte{1, 2, 3, 4}, 1, 1)
	assert.NoError(t, err)
	assert.Zero(t, handle)

	assert.NoError(t, s.Evict(context.Background(), handle))
}
