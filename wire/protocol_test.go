package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.WriteBlock(BlockTiffHeaderAndMeta, 0, []byte("header")))
	require.NoError(t, e.WriteBlock(BlockTiffIfds, 1, []byte("ifds")))
	raw, err := e.Finish()
	require.NoError(t, err)

	d, err := NewDecoder(bytes.NewReader(raw))
	require.NoError(t, err)
	blocks, err := d.ReadAll()
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, BlockTiffHeaderAndMeta, blocks[0].Header.Type)
	assert.Equal(t, []byte("header"), blocks[0].Payload)
	assert.Equal(t, BlockTiffIfds, blocks[1].Header.Type)
	assert.Equal(t, []byte("ifds"), blocks[1].Payload)
}

func TestEncodeTiffMetadataSkipsNilPayloads(t *testing.T) {
	raw, err := EncodeTiffMetadata([]byte("hm"), []byte("ifds"), nil, []byte("off"), []byte("cnt"), nil)
	require.NoError(t, err)

	d, err := NewDecoder(bytes.NewReader(raw))
	require.NoError(t, err)
	blocks, err := d.ReadAll()
	require.NoError(t, err)

	var types []BlockType
	for _, b := range blocks {
		types = append(types, b.Header.Type)
	}
	assert.Equal(t, []BlockType{
		BlockTiffHeaderAndMeta,
		BlockTiffIfds,
		BlockTiffTileOffsets,
		BlockTiffTileByteCounts,
	}, types)
}

func TestNewDecoderUnwrapsLZ4Block(t *testing.T) {
	inner := NewEncoder()
	require.NoError(t, inner.WriteBlock(BlockTiffHeaderAndMeta, 0, []byte("plain metadata")))
	plain, err := inner.Finish()
	require.NoError(t, err)

	// Build an outer stream whose only block is an LZ4_COMPRESSED_DATA
	// block wrapping `plain` as a single uncompressed LZ4 literal run, with
	// Index carrying the uncompressed size per the wire header convention.
	lz4Payload := lz4LiteralOnlyBlock(plain)
	hdr := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(BlockLZ4CompressedData))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(plain)))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(lz4Payload)))
	outer := append(hdr, lz4Payload...)

	d, err := NewDecoder(bytes.NewReader(outer))
	require.NoError(t, err)
	blocks, err := d.ReadAll()
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, []byte("plain metadata"), blocks[0].Payload)
}

func TestEncodeRangeResponseConcatenatesInOrder(t *testing.T) {
	got := EncodeRangeResponse([][]byte{[]byte("abc"), []byte("def")})
	assert.Equal(t, []byte("abcdef"), got)
}

// lz4LiteralOnlyBlock encodes buf as a single pure-literal LZ4 sequence
// with no back-references: valid per the block format since a block may
// end right after its final literal run, with the literal-length
// extension handling runs over 15 bytes.
func lz4LiteralOnlyBlock(buf []byte) []byte {
	n := len(buf)
	var out []byte
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}
	out = append(out, buf...)
	return out
}
