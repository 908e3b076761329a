package cmd

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pathviewer/wsicore/slide"
)

func newReadRegionCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-region <path> <level> <x> <y> <w> <h> <out.png>",
		Short: "decode a pixel region and write it as a PNG",
		Args:  cobra.ExactArgs(7),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return exitErrorf("bad arguments: level: %w", err)
			}
			x, err := strconv.Atoi(args[2])
			if err != nil {
				return exitErrorf("bad arguments: x: %w", err)
			}
			y, err := strconv.Atoi(args[3])
			if err != nil {
				return exitErrorf("bad arguments: y: %w", err)
			}
			w, err := strconv.Atoi(args[4])
			if err != nil {
				return exitErrorf("bad arguments: w: %w", err)
			}
			h, err := strconv.Atoi(args[5])
			if err != nil {
				return exitErrorf("bad arguments: h: %w", err)
			}
			outPath := args[6]

			img, src, err := openFromPath(ctx, args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			defer img.Close()

			dst := make([]byte, w*h*4)
			if err := img.ReadRegion(ctx, level, x, y, w, h, dst, slide.FormatBGRA8); err != nil {
				return exitErrorf("unsupported format or region: %w", err)
			}

			out := image.NewRGBA(image.Rect(0, 0, w, h))
			for row := 0; row < h; row++ {
				for col := 0; col < w; col++ {
					i := (row*w + col) * 4
					b, g, r, a := dst[i], dst[i+1], dst[i+2], dst[i+3]
					out.SetRGBA(col, row, color.RGBA{R: r, G: g, B: b, A: a})
				}
			}

			f, err := os.Create(outPath)
			if err != nil {
				return exitErrorf("could not open file: %w", err)
			}
			defer f.Close()
			return png.Encode(f, out)
		},
	}
	return cmd
}
