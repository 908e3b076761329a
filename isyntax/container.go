package isyntax

import (
	"encoding/binary"
	"fmt"
)

// dicomTagHeaderSize is sizeof(dicom_tag_header_t): u16 group, u16 element,
// u32 size, packed, little-endian.
const dicomTagHeaderSize = 8

// partialBlockHeaderSize/fullBlockHeaderSize are the two on-disk layouts a
// block header table entry may use: the partial form omits the
// data-offset/size pair (resolved later via the seek table), the full form
// carries them inline.
const (
	partialBlockHeaderSize = 48
	fullBlockHeaderSize    = 80
	seekTableEntrySize     = 40
)

var le = binary.LittleEndian

// parseBlockHeaderTable decodes the base64-decoded block header table blob
// into a sequence of rawBlockHeader entries, detecting the partial-vs-full
// layout from the buffer's length (it must divide evenly by one of the two
// known entry sizes).
func parseBlockHeaderTable(raw []byte) ([]rawBlockHeader, bool, error) {
	if len(raw) == 0 {
		return nil, false, ErrTruncatedHeaderTable
	}
	if len(raw)%fullBlockHeaderSize == 0 && len(raw)%partialBlockHeaderSize != 0 {
		return parseBlockHeaderEntries(raw, fullBlockHeaderSize, true)
	}
	if len(raw)%partialBlockHeaderSize == 0 {
		return parseBlockHeaderEntries(raw, partialBlockHeaderSize, false)
	}
	return nil, false, ErrTruncatedHeaderTable
}

func parseBlockHeaderEntries(raw []byte, entrySize int, isFull bool) ([]rawBlockHeader, bool, error) {
	n := len(raw) / entrySize
	out := make([]rawBlockHeader, 0, n)
	for i := 0; i < n; i++ {
		entry := raw[i*entrySize : (i+1)*entrySize]
		// Skip two dicom_tag_header_t prefixes (sequence element, block
		// coordinates), then read x, y, color, scale, coefficient as u32.
		cursor := dicomTagHeaderSize * 2
		x := le.Uint32(entry[cursor:])
		y := le.Uint32(entry[cursor+4:])
		colour := le.Uint32(entry[cursor+8:])
		scale := le.Uint32(entry[cursor+12:])
		coefficient := le.Uint32(entry[cursor+16:])
		cursor += 20

		rb := rawBlockHeader{
			X:           int(x),
			Y:           int(y),
			Colour:      int(colour),
			Scale:       int(scale),
			Coefficient: int(coefficient),
			BlockID:     int64(i),
		}

		if isFull {
			cursor += dicomTagHeaderSize
			rb.BlockDataOffset = int64(le.Uint64(entry[cursor:]))
			cursor += 8
			cursor += dicomTagHeaderSize
			rb.BlockSize = int64(le.Uint64(entry[cursor:]))
			cursor += 8
		}
		cursor += dicomTagHeaderSize
		rb.HeaderTemplateID = int(le.Uint32(entry[cursor:]))

		out = append(out, rb)
	}
	return out, isFull, nil
}

// seekEntry is one resolved (offset, size) pair from the seek table.
type seekEntry struct {
	Offset int64
	Size   int64
}

// parseSeekTable decodes the raw seek-table bytes (present only when the
// block header table was partial) into one entry per code-block.
// resolveCodeblocks looks entries up by each block header's position in
// the block header table (rawBlockHeader.BlockID); blockIDFor is not used
// for that lookup.
func parseSeekTable(raw []byte) ([]seekEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw)%seekTableEntrySize != 0 {
		return nil, ErrMalformedSeekTable
	}
	n := len(raw) / seekTableEntrySize
	out := make([]seekEntry, n)
	for i := 0; i < n; i++ {
		entry := raw[i*seekTableEntrySize : (i+1)*seekTableEntrySize]
		cursor := dicomTagHeaderSize // start_header
		cursor += dicomTagHeaderSize // block_data_offset_header
		offset := int64(le.Uint64(entry[cursor:]))
		cursor += 8
		cursor += dicomTagHeaderSize // block_size_header
		size := int64(le.Uint64(entry[cursor:]))
		out[i] = seekEntry{Offset: offset, Size: size}
	}
	return out, nil
}

// resolveCodeblocks merges the block header table with the seek table (when
// the header was partial) into a flat list of Codeblocks ready for
// chunking. The original's "coefficient" field (0 for LL, nonzero for the
// composite H band) maps onto CoeffKind.
func resolveCodeblocks(raw []rawBlockHeader, seek []seekEntry, isFull bool) ([]Codeblock, error) {
	out := make([]Codeblock, 0, len(raw))
	for _, rb := range raw {
		cb := Codeblock{
			X:          rb.X,
			Y:          rb.Y,
			Colour:     Colour(rb.Colour),
			Scale:      rb.Scale,
			HeaderTmpl: rb.HeaderTemplateID,
		}
		if rb.Coefficient == 0 {
			cb.Kind = CoeffLL
		} else {
			cb.Kind = CoeffH
		}

		if isFull {
			cb.Offset = rb.BlockDataOffset
			cb.Size = rb.BlockSize
		} else {
			idx := int(rb.BlockID)
			if idx < 0 || idx >= len(seek) {
				return nil, ErrMalformedSeekTable
			}
			cb.Offset = seek[idx].Offset
			cb.Size = seek[idx].Size
		}
		out = append(out, cb)
	}
	return out, nil
}

// blockIDFor computes the block header/seek table index formula:
//
//	sum(tilesPerLevel[0:scale]) + blockY*gridStride + blockX + colour*totalTiles
func blockIDFor(tilesPerLevel []int, gridStride, blockX, blockY, scale, colour, totalTiles int) int64 {
	var base int64
	for s := 0; s < scale && s < len(tilesPerLevel); s++ {
		base += int64(tilesPerLevel[s])
	}
	return base + int64(blockY)*int64(gridStride) + int64(blockX) + int64(colour)*int64(totalTiles)
}

// relLevelChunkSize mirrors isyntax_get_chunk_codeblocks_per_color_for_level:
// a chunk boundary falls every third scale (scale % 3 == 2), and the
// codeblock count per colour grows 1 -> 5 -> 21 as the chunk spans more
// descendant scales.
func relLevelChunkSize(scale int, hasLL bool) int {
	count := 1
	switch scale % 3 {
	case 0:
		count = 1
	case 1:
		count = 1 + 4
	case 2:
		count = 1 + 4 + 16
	}
	if hasLL {
		count++
	}
	return count
}

// buildChunks groups a flat list of codeblocks into I/O chunks, at most
// one per boundary scale (the pyramid's top scale, or a scale with
// scale%3==2). Each chunk holds the first relLevelChunkSize*3 codeblocks,
// in list order, whose scale equals that boundary scale (or all of them
// when fewer exist); codeblocks of the finer scales below a boundary are
// not added to any chunk.
func buildChunks(blocks []Codeblock, topScale int) ([]Chunk, error) {
	if len(blocks) == 0 {
		return nil, nil
	}

	byColourScale := map[int][]Codeblock{}
	for _, cb := range blocks {
		key := cb.Scale
		byColourScale[key] = append(byColourScale[key], cb)
	}

	var chunks []Chunk
	for scale := topScale; scale >= 0; scale-- {
		if scale%3 != 2 && scale != topScale {
			continue
		}
		group := byColourScale[scale]
		if len(group) == 0 {
			continue
		}
		hasLL := scale == topScale
		perColour := relLevelChunkSize(scale, hasLL)
		want := perColour * 3
		if len(group) < want {
			// Partial/edge chunk: take what exists rather than failing —
			// boundary tiles legitimately have fewer descendant blocks.
			want = len(group)
		}

		var minOff, maxEnd int64 = -1, -1
		for i := 0; i < want; i++ {
			cb := group[i]
			if minOff == -1 || cb.Offset < minOff {
				minOff = cb.Offset
			}
			end := cb.Offset + cb.Size
			if end > maxEnd {
				maxEnd = end
			}
		}
		if minOff < 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			TopScale:   scale,
			Offset:     minOff,
			Length:     maxEnd - minOff,
			Codeblocks: group[:want],
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("isyntax: no chunks resolved from %d codeblocks", len(blocks))
	}
	return chunks, nil
}
