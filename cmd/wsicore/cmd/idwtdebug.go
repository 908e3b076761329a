package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pathviewer/wsicore/debugdump"
	"github.com/pathviewer/wsicore/slide"
)

// newIdwtDebugCmd is the hidden debug-dump entry point: it decodes one
// tile and writes it to a PNG, the Go equivalent of the original
// decoder's DEBUG_OUTPUT_IDWT_STEPS_AS_PNG build-time flag, exposed here
// as an opt-in subcommand instead of a recompile.
func newIdwtDebugCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "idwt-debug <path> <level> <tile_x> <tile_y> <out.png>",
		Short:  "dump one decoded tile to a PNG for visual inspection",
		Hidden: true,
		Args:   cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return exitErrorf("bad arguments: level: %w", err)
			}
			tx, err := strconv.Atoi(args[2])
			if err != nil {
				return exitErrorf("bad arguments: tile_x: %w", err)
			}
			ty, err := strconv.Atoi(args[3])
			if err != nil {
				return exitErrorf("bad arguments: tile_y: %w", err)
			}
			outPath := args[4]

			img, src, err := openFromPath(ctx, args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			defer img.Close()

			if img.Backend != slide.BackendIsyntax {
				return exitErrorf("unsupported format: idwt-debug only supports isyntax images")
			}

			tw, th := 512, 512
			if len(img.Levels) > level {
				lvl := img.Levels[level]
				if lvl.TileWidth > 0 {
					tw, th = lvl.TileWidth, lvl.TileHeight
				}
			}
			dst := make([]byte, tw*th*4)
			if err := img.ReadRegion(ctx, level, tx*tw, ty*th, tw, th, dst, slide.FormatBGRA8); err != nil {
				return fmt.Errorf("decoding tile: %w", err)
			}

			label := fmt.Sprintf("L%d (%d,%d)", level, tx, ty)
			return debugdump.DumpBGRA8Tile(outPath, dst, tw, th, label)
		},
	}
	return cmd
}
