// Command wsicore opens a whole-slide image (TIFF/BigTIFF, iSyntax, or
// anything OpenSlide/stdlib can read) and either dumps a region to PNG
// or serves it over the remote tile-fetch wire protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pathviewer/wsicore/cmd/wsicore/cmd"
)

func main() {
	ctx := context.Background()
	root := cmd.NewRoot(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a returned error to the CLI's documented exit codes: 1
// bad arguments, 2 could not open file, 3 unsupported format.
func exitCode(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unsupported"):
		return 3
	case strings.Contains(msg, "open"):
		return 2
	default:
		return 1
	}
}
