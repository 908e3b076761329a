package wire

import "fmt"

// DecompressBlock decodes one LZ4 block (the raw block format, not the
// framed .lz4 file format: no magic number, no block checksums) into a
// buffer of exactly uncompressedSize bytes. This is the minimal reader
// half of LZ4 needed to unwrap an optional LZ4_COMPRESSED_DATA wire
// block; no ecosystem LZ4 package appears anywhere in the retrieved
// example corpus, so this is implemented directly against the published
// block-format spec rather than reaching for ulikunitz/xz or a brotli
// decoder, neither of which speaks this format.
func DecompressBlock(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, 0, uncompressedSize)
	i := 0
	for i < len(src) {
		if i >= len(src) {
			return nil, fmt.Errorf("wire: lz4: truncated sequence token")
		}
		token := src[i]
		i++

		literalLen := int(token >> 4)
		if literalLen == 15 {
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("wire: lz4: truncated literal length")
				}
				b := src[i]
				i++
				literalLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		if i+literalLen > len(src) {
			return nil, fmt.Errorf("wire: lz4: literal run exceeds input")
		}
		dst = append(dst, src[i:i+literalLen]...)
		i += literalLen

		if i >= len(src) {
			// a block may legally end right after its final literal run,
			// with no match that follows
			break
		}
		if i+2 > len(src) {
			return nil, fmt.Errorf("wire: lz4: truncated match offset")
		}
		offset := int(src[i]) | int(src[i+1])<<8
		i += 2
		if offset == 0 {
			return nil, fmt.Errorf("wire: lz4: zero match offset")
		}

		matchLen := int(token & 0x0F)
		if matchLen == 15 {
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("wire: lz4: truncated match length")
				}
				b := src[i]
				i++
				matchLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		matchLen += 4 // lz4's minimum match length

		matchStart := len(dst) - offset
		if matchStart < 0 {
			return nil, fmt.Errorf("wire: lz4: match offset before start of output")
		}
		for j := 0; j < matchLen; j++ {
			dst = append(dst, dst[matchStart+j])
		}
	}
	if len(dst) != uncompressedSize {
		return nil, fmt.Errorf("wire: lz4: decompressed %d bytes, expected %d", len(dst), uncompressedSize)
	}
	return dst, nil
}
