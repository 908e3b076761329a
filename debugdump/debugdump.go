// Package debugdump renders wavelet-coefficient planes and reconstructed
// tiles to PNG files for visual inspection, the Go equivalent of the
// original decoder's DEBUG_OUTPUT_IDWT_STEPS_AS_PNG / stbi_write_png
// debug path. It is off by default; callers opt in explicitly (from
// tests or the hidden `wsicore idwt-debug` CLI subcommand), never from
// the normal decode path.
package debugdump

import (
	"fmt"

	"github.com/fogleman/gg"
)

// DumpGray8Plane renders a single-channel int32 coefficient plane to
// path as an 8-bit grayscale PNG, clamping each sample into [0, 255].
func DumpGray8Plane(path string, plane []int32, width, height int) error {
	if len(plane) != width*height {
		return fmt.Errorf("debugdump: plane length %d != %d*%d", len(plane), width, height)
	}
	dc := gg.NewContext(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := plane[y*width+x]
			g := clampByte(v)
			dc.SetRGB255(int(g), int(g), int(g))
			dc.SetPixel(x, y)
		}
	}
	return dc.SavePNG(path)
}

// DumpBGRA8Tile renders an already-reconstructed BGRA8 tile buffer to
// path, annotated with a small corner label (scale/x/y) via gg's text
// drawing, for telling dumped tiles apart at a glance in a directory
// listing.
func DumpBGRA8Tile(path string, pixels []byte, width, height int, label string) error {
	if len(pixels) != width*height*4 {
		return fmt.Errorf("debugdump: pixel buffer length %d != %d*%d*4", len(pixels), width, height)
	}
	dc := gg.NewContext(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			b, g, r, a := pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
			dc.SetRGBA255(int(r), int(g), int(b), int(a))
			dc.SetPixel(x, y)
		}
	}
	if label != "" {
		dc.SetRGB(1, 1, 0)
		dc.DrawString(label, 4, float64(height)-4)
	}
	return dc.SavePNG(path)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
