package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pathviewer/wsicore/internal/logging"
)

// NewRoot builds the wsicore CLI's command tree.
func NewRoot(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:   "wsicore",
		Short: "open and serve whole-slide pyramid images",
		Long:  "wsicore opens TIFF/BigTIFF, iSyntax, and OpenSlide-compatible whole-slide images and can dump regions or serve them over a remote tile protocol.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}
			opts := logging.DefaultOptions()
			opts.Level = level
			slog.SetDefault(logging.New(opts))
		},
	}
	root.PersistentFlags().String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		newOpenCmd(ctx),
		newReadRegionCmd(ctx),
		newServeCmd(ctx),
		newIdwtDebugCmd(ctx),
	)
	return root
}

func exitErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
