package tiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/tiff/compression"
	"github.com/pathviewer/wsicore/tiff/photometric"
)

// fakeSource is a trivial in-memory bytesource.Source backed by a byte
// slice, used to exercise ParseHeader without touching the filesystem.
type fakeSource struct{ buf []byte }

func (f *fakeSource) ReadAt(_ context.Context, offset int64, dst []byte) (int, error) {
	if offset < 0 || int(offset)+len(dst) > len(f.buf) {
		return 0, ErrTruncatedIfd
	}
	copy(dst, f.buf[offset:int(offset)+len(dst)])
	return len(dst), nil
}

func (f *fakeSource) ReadBatch(ctx context.Context, ranges []bytesource.Range) ([]byte, error) {
	return bytesource.ReadBatchSequential(ctx, f, ranges)
}

func (f *fakeSource) Close() error { return nil }

type tifEntryInput struct {
	tag   uint16
	typ   uint16
	value uint32
}

// buildClassicTIFF assembles a minimal little-endian classic TIFF with one
// tiled, JPEG-compressed IFD: 512x512 image, 256x256 tiles (a 2x2 grid),
// each tile an empty/background marker.
func buildClassicTIFF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	bo := binary.LittleEndian

	buf.WriteString("II")
	binary.Write(&buf, bo, uint16(42))
	ifdOffsetPos := buf.Len()
	binary.Write(&buf, bo, uint32(0)) // patched below

	ifdStart := int64(buf.Len())

	entries := []tifEntryInput{
		{tag: 256, typ: 4, value: 512}, // ImageWidth (LONG)
		{tag: 257, typ: 4, value: 512}, // ImageLength
		{tag: 322, typ: 4, value: 256}, // TileWidth
		{tag: 323, typ: 4, value: 256}, // TileLength
		{tag: 259, typ: 3, value: uint32(compression.JPEG)},  // Compression
		{tag: 262, typ: 3, value: uint32(photometric.YCbCr)}, // Photometric
	}
	totalEntries := len(entries) + 2 // + TileOffsets + TileByteCounts

	entriesBytes := int64(totalEntries) * 12
	afterIfd := ifdStart + 2 + entriesBytes + 4
	tileOffsetsArrayAt := afterIfd
	tileByteCountsArrayAt := tileOffsetsArrayAt + 4*4
	tilePayloadsAt := tileByteCountsArrayAt + 4*4

	tilePayload := []byte{0xFF, 0xD9}
	var tileOffs, tileLens [4]uint32
	for i := 0; i < 4; i++ {
		tileOffs[i] = uint32(tilePayloadsAt) + uint32(i*len(tilePayload))
		tileLens[i] = uint32(len(tilePayload))
	}

	binary.Write(&buf, bo, uint16(totalEntries))

	writeEntry := func(tag, typ uint16, count uint32, valueBytes [4]byte) {
		binary.Write(&buf, bo, tag)
		binary.Write(&buf, bo, typ)
		binary.Write(&buf, bo, count)
		buf.Write(valueBytes[:])
	}

	for _, e := range entries {
		var vb [4]byte
		bo.PutUint32(vb[:], e.value)
		writeEntry(e.tag, e.typ, 1, vb)
	}
	var tOffVal [4]byte
	bo.PutUint32(tOffVal[:], uint32(tileOffsetsArrayAt))
	writeEntry(324, 4, 4, tOffVal)
	var tLenVal [4]byte
	bo.PutUint32(tLenVal[:], uint32(tileByteCountsArrayAt))
	writeEntry(325, 4, 4, tLenVal)

	binary.Write(&buf, bo, uint32(0)) // next IFD offset: none

	for _, v := range tileOffs {
		binary.Write(&buf, bo, v)
	}
	for _, v := range tileLens {
		binary.Write(&buf, bo, v)
	}
	for range tileOffs {
		buf.Write(tilePayload)
	}

	out := buf.Bytes()
	bo.PutUint32(out[ifdOffsetPos:], uint32(ifdStart))
	return out
}

func TestParseHeaderClassicTIFF(t *testing.T) {
	data := buildClassicTIFF(t)
	src := &fakeSource{buf: data}

	h, err := ParseHeader(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, h.Ifds, 1)
	assert.False(t, h.BigTIFF)

	ifd := h.Ifds[0]
	assert.Equal(t, int64(512), ifd.ImageWidth)
	assert.Equal(t, int64(512), ifd.ImageHeight)
	assert.Equal(t, int64(256), ifd.TileWidth)
	assert.Equal(t, int64(256), ifd.TileHeight)
	assert.Equal(t, compression.JPEG, ifd.Compression)
	assert.Equal(t, photometric.YCbCr, ifd.Photometric)
	assert.Len(t, ifd.TileOffsets, 4)
	assert.Len(t, ifd.TileByteCounts, 4)
	assert.Equal(t, SubimageLevel, ifd.Kind)
	assert.Equal(t, 0, ifd.DownsampleLevel)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	src := &fakeSource{buf: []byte("XX\x00\x00\x00\x00\x00\x00")}
	_, err := ParseHeader(context.Background(), src)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReaderDecodesEmptyTilesAsTransparent(t *testing.T) {
	data := buildClassicTIFF(t)
	src := &fakeSource{buf: data}

	r, err := Open(context.Background(), src, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, r.LevelCount())

	dst := make([]byte, 256*256*4)
	err = r.ReadTile(context.Background(), 0, 0, 0, dst)
	require.NoError(t, err)
	for _, b := range dst {
		assert.Equal(t, byte(0), b)
	}
}

func TestReaderReadRegionAssemblesMultipleTiles(t *testing.T) {
	data := buildClassicTIFF(t)
	src := &fakeSource{buf: data}

	r, err := Open(context.Background(), src, DefaultOptions())
	require.NoError(t, err)

	dst := make([]byte, 300*300*4)
	err = r.ReadRegion(context.Background(), 0, 200, 200, 300, 300, dst)
	require.NoError(t, err)
	assert.Len(t, dst, 300*300*4)
}
