package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathviewer/wsicore/slide"
)

func writeTestPNG(t *testing.T, path string, side int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestOpenFromPathOpensRealFileViaSimpleBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.png")
	writeTestPNG(t, path, 16)

	img, src, err := openFromPath(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()
	defer img.Close()

	assert.Equal(t, slide.BackendSimple, img.Backend)
	w, h := img.Dimensions()
	assert.EqualValues(t, 16, w)
	assert.EqualValues(t, 16, h)
}

func TestOpenFromPathErrorsOnMissingFile(t *testing.T) {
	_, _, err := openFromPath(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}
