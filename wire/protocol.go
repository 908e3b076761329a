// Package wire implements the remote tile-fetch protocol: the block
// format the /slide/<filename>/header endpoint serialises TIFF metadata
// into, and the concatenated-byte-range form range-read requests use.
// orcaman/writerseeker buffers the encoded stream; each block's length
// field is written up front from its payload's size, so the encoder never
// seeks back.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/orcaman/writerseeker"
)

// BlockType tags one serialised metadata block.
type BlockType uint32

const (
	BlockTiffHeaderAndMeta    BlockType = 9001
	BlockTiffIfds             BlockType = 9002
	BlockTiffImageDescription BlockType = 9003
	BlockTiffTileOffsets      BlockType = 9004
	BlockTiffTileByteCounts   BlockType = 9005
	BlockTiffJpegTables       BlockType = 9006
	BlockLZ4CompressedData    BlockType = 4444
	BlockTerminator           BlockType = 800
)

// BlockHeader precedes every block's payload on the wire.
type BlockHeader struct {
	Type   BlockType
	Index  uint32 // for LZ4_COMPRESSED_DATA, carries the uncompressed size instead
	Length uint64
}

const blockHeaderSize = 4 + 4 + 8

// Block pairs a header with its raw (already-encoded) payload bytes.
type Block struct {
	Header  BlockHeader
	Payload []byte
}

// Encoder serialises a sequence of metadata blocks, always terminated by
// a zero-length BlockTerminator block.
type Encoder struct {
	ws *writerseeker.WriterSeeker
}

// NewEncoder starts a fresh block stream.
func NewEncoder() *Encoder {
	return &Encoder{ws: &writerseeker.WriterSeeker{}}
}

// WriteBlock appends one typed block.
func (e *Encoder) WriteBlock(typ BlockType, index uint32, payload []byte) error {
	hdr := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[4:8], index)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(payload)))
	if _, err := e.ws.Write(hdr); err != nil {
		return fmt.Errorf("wire: writing block header: %w", err)
	}
	if _, err := e.ws.Write(payload); err != nil {
		return fmt.Errorf("wire: writing block payload: %w", err)
	}
	return nil
}

// Finish appends the terminator block and returns the full encoded
// stream.
func (e *Encoder) Finish() ([]byte, error) {
	if err := e.WriteBlock(BlockTerminator, 0, nil); err != nil {
		return nil, err
	}
	r := e.ws.Reader()
	return io.ReadAll(r)
}

// EncodeTiffMetadata serialises the block set the header endpoint
// returns for one TIFF: header/meta, IFD table, image description,
// per-level tile offset/byte-count tables, and JPEG tables, one block
// each, terminated.
func EncodeTiffMetadata(headerAndMeta, ifds, imageDescription, tileOffsets, tileByteCounts, jpegTables []byte) ([]byte, error) {
	e := NewEncoder()
	blocks := []struct {
		typ     BlockType
		payload []byte
	}{
		{BlockTiffHeaderAndMeta, headerAndMeta},
		{BlockTiffIfds, ifds},
		{BlockTiffImageDescription, imageDescription},
		{BlockTiffTileOffsets, tileOffsets},
		{BlockTiffTileByteCounts, tileByteCounts},
		{BlockTiffJpegTables, jpegTables},
	}
	for i, b := range blocks {
		if b.payload == nil {
			continue
		}
		if err := e.WriteBlock(b.typ, uint32(i), b.payload); err != nil {
			return nil, err
		}
	}
	return e.Finish()
}

// Decoder reads a block stream back out, transparently unwrapping a
// single outer LZ4_COMPRESSED_DATA block if present.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r. If the stream's first block is
// BlockLZ4CompressedData, it is decompressed in full and subsequent
// reads come from the decompressed buffer instead.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReader(r)
	first, err := peekHeader(br)
	if err != nil {
		return nil, err
	}
	if first.Type != BlockLZ4CompressedData {
		return &Decoder{r: br}, nil
	}

	hdr, payload, err := readBlock(br)
	if err != nil {
		return nil, err
	}
	uncompressedSize := hdr.Index
	plain, err := DecompressBlock(payload, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("wire: lz4 decompress: %w", err)
	}
	return &Decoder{r: bufio.NewReader(newByteSliceReader(plain))}, nil
}

// peekHeader reads the next block's header without consuming the reader
// (bufio.Reader.Peek backs this, so it only works when blockHeaderSize
// bytes are available in one read — true for the LZ4-wrapper check since
// that header is always the stream's first bytes).
func peekHeader(br *bufio.Reader) (BlockHeader, error) {
	raw, err := br.Peek(blockHeaderSize)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("wire: peeking block header: %w", err)
	}
	return BlockHeader{
		Type:   BlockType(binary.LittleEndian.Uint32(raw[0:4])),
		Index:  binary.LittleEndian.Uint32(raw[4:8]),
		Length: binary.LittleEndian.Uint64(raw[8:16]),
	}, nil
}

func readBlock(r io.Reader) (BlockHeader, []byte, error) {
	raw := make([]byte, blockHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return BlockHeader{}, nil, fmt.Errorf("wire: reading block header: %w", err)
	}
	hdr := BlockHeader{
		Type:   BlockType(binary.LittleEndian.Uint32(raw[0:4])),
		Index:  binary.LittleEndian.Uint32(raw[4:8]),
		Length: binary.LittleEndian.Uint64(raw[8:16]),
	}
	payload := make([]byte, hdr.Length)
	if hdr.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return BlockHeader{}, nil, fmt.Errorf("wire: reading block payload: %w", err)
		}
	}
	return hdr, payload, nil
}

// Next reads the next block. Callers stop on BlockTerminator.
func (d *Decoder) Next() (BlockHeader, []byte, error) {
	return readBlock(d.r)
}

// ReadAll reads every block up to (and not including) the terminator.
func (d *Decoder) ReadAll() ([]Block, error) {
	var out []Block
	for {
		hdr, payload, err := d.Next()
		if err != nil {
			return nil, err
		}
		if hdr.Type == BlockTerminator {
			return out, nil
		}
		out = append(out, Block{Header: hdr, Payload: payload})
	}
}

type byteSliceReader struct {
	buf []byte
	pos int
}

func newByteSliceReader(buf []byte) *byteSliceReader { return &byteSliceReader{buf: buf} }

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

// RangeSpec is one (offset, length) component of a
// /slide/<filename>/<off>/<len>/... URL.
type RangeSpec struct {
	Offset int64
	Length int64
}

// EncodeRangeResponse concatenates byte ranges already read from the
// source file, in request order, with no framing — the client already
// knows each range's length from the request it made.
func EncodeRangeResponse(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
