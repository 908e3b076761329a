package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/slide"
)

func openFromPath(ctx context.Context, path string) (*slide.Image, bytesource.Source, error) {
	src, err := bytesource.OpenFile(path)
	if err != nil {
		return nil, nil, exitErrorf("could not open file: %w", err)
	}
	img, err := slide.Open(ctx, src, slide.OpenOptions{})
	if err != nil {
		src.Close()
		return nil, nil, exitErrorf("could not open file: %w", err)
	}
	return img, src, nil
}

func newOpenCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "open a slide and print its pyramid metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, src, err := openFromPath(ctx, args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			defer img.Close()

			w, h := img.Dimensions()
			mppX, mppY := img.MicronsPerPixel()
			fmt.Printf("backend=%d levels=%d dimensions=%dx%d mpp=%.4gx%.4g\n",
				img.Backend, img.LevelCount(), w, h, mppX, mppY)
			for l, lvl := range img.Levels {
				fmt.Printf("  level %d: downsample=%d tiles=%dx%d tile_size=%dx%d\n",
					l, lvl.DownsampleFactor, lvl.WidthInTiles, lvl.HeightInTiles, lvl.TileWidth, lvl.TileHeight)
			}
			return nil
		},
	}
	return cmd
}
