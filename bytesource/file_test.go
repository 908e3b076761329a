package bytesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileReadAtAndPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, path, src.Path())

	dst := make([]byte, 4)
	n, err := src.ReadAt(context.Background(), 3, dst)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), dst)

	size, err := src.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)
}

func TestFileSourceReadAtShortRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	dst := make([]byte, 10)
	_, err = src.ReadAt(context.Background(), 0, dst)
	assert.ErrorIs(t, err, ErrShort)
}

func TestFileSourceReadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("helloworld"), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	out, err := src.ReadBatch(context.Background(), []Range{{Offset: 0, Length: 5}, {Offset: 5, Length: 5}})
	require.NoError(t, err)
	assert.Equal(t, []byte("helloworld"), out)
}

func TestOpenFileErrorsOnMissingPath(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}
