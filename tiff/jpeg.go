package tiff

import (
	"bytes"
	"image/jpeg"

	"github.com/pathviewer/wsicore/tiff/photometric"
)

// emptyJPEGMarker is the two-byte "SOI-less, scan-less" stream a scanner
// emits for a background tile: just the End-Of-Image marker.
var emptyJPEGMarker = []byte{0xFF, 0xD9}

// DecodeTile decodes one JPEG-compressed tile into a tileW*tileH*4 BGRA8
// buffer. jpegTables is the IFD-wide quantisation/Huffman table segment
// (the JPEGTables tag); payload is the tile's own abbreviated JPEG
// stream. Edge tiles that extend past validW/validH are decoded normally
// and padded with transparent pixels beyond the true image extent.
func DecodeTile(dst []byte, jpegTables, payload []byte, tileW, tileH, validW, validH int, photo photometric.Interpretation) error {
	need := tileW * tileH * 4
	if len(dst) < need {
		return ErrInconsistentTileTable
	}

	if len(payload) == 0 || bytes.Equal(payload, emptyJPEGMarker) {
		// Empty tile: leave fully transparent (background).
		for i := 0; i < need; i++ {
			dst[i] = 0
		}
		return nil
	}

	stream := stitchJPEGStream(jpegTables, payload)
	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	for y := 0; y < tileH; y++ {
		row := dst[y*tileW*4 : (y+1)*tileW*4]
		if y >= validH || y >= bounds.Dy() {
			for i := range row {
				row[i] = 0
			}
			continue
		}
		for x := 0; x < tileW; x++ {
			px := row[x*4 : x*4+4]
			if x >= validW || x >= bounds.Dx() {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 0
				continue
			}
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			px[0] = byte(b >> 8)
			px[1] = byte(g >> 8)
			px[2] = byte(r >> 8)
			px[3] = 0xFF
		}
	}
	return nil
}

// stitchJPEGStream splices an IFD's shared table segment with a tile's
// abbreviated scan: the tables blob's trailing EOI (FF D9) is dropped, and
// the tile payload's leading SOI (FF D8) is dropped, so the result is one
// well-formed stream the standard library's decoder can read directly.
// This mirrors how libtiff's JPEG codec splices JPEGTables ahead of each
// strip/tile's compressed data.
func stitchJPEGStream(jpegTables, payload []byte) []byte {
	if len(jpegTables) < 2 {
		return payload
	}
	tables := jpegTables
	if len(tables) >= 2 && tables[len(tables)-2] == 0xFF && tables[len(tables)-1] == 0xD9 {
		tables = tables[:len(tables)-2]
	}
	tile := payload
	if len(tile) >= 2 && tile[0] == 0xFF && tile[1] == 0xD8 {
		tile = tile[2:]
	}
	out := make([]byte, 0, len(tables)+len(tile))
	out = append(out, tables...)
	out = append(out, tile...)
	return out
}
