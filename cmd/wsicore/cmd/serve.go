package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/pathviewer/wsicore/bytesource"
	"github.com/pathviewer/wsicore/metrics"
	"github.com/pathviewer/wsicore/tiff"
	"github.com/pathviewer/wsicore/wire"
)

func newServeCmd(ctx context.Context) *cobra.Command {
	var addr string
	var root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve slides under a directory over the remote tile-fetch protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.MustRegister()
			mux := http.NewServeMux()
			mux.HandleFunc("/slide/", slideHandler(ctx, root))
			mux.HandleFunc("/slide_set/", slideSetHandler(root))
			slog.InfoContext(ctx, "serving", slog.String("addr", addr), slog.String("root", root))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&root, "root", ".", "directory slides are served from")
	return cmd
}

// slideHandler implements the two /slide/<filename>/... URL forms: a
// metadata header request and a concatenated byte-range request.
func slideHandler(ctx context.Context, root string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/slide/"), "/")
		if len(parts) < 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		filename := parts[0]
		path := root + "/" + filename

		if parts[1] == "header" {
			serveHeader(ctx, w, path)
			return
		}
		serveRanges(ctx, w, path, parts[1:])
	}
}

func serveHeader(ctx context.Context, w http.ResponseWriter, path string) {
	src, err := bytesource.OpenFile(path)
	if err != nil {
		http.Error(w, "could not open file", http.StatusNotFound)
		return
	}
	defer src.Close()

	header, err := tiff.ParseHeader(ctx, src)
	if err != nil {
		http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
		return
	}

	ifdBytes := encodeIfds(header)
	blob, err := wire.EncodeTiffMetadata(nil, ifdBytes, nil, nil, nil, nil)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(blob)
}

// encodeIfds writes one little-endian u64 per IFD holding that IFD's tile
// count (len(TileOffsets)), good enough for the header endpoint's
// TIFF_IFDS block until a richer metadata schema is needed.
func encodeIfds(header *tiff.Header) []byte {
	var out []byte
	for _, ifd := range header.Ifds {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(len(ifd.TileOffsets)))
		out = append(out, buf...)
	}
	return out
}

func serveRanges(ctx context.Context, w http.ResponseWriter, path string, segments []string) {
	src, err := bytesource.OpenFile(path)
	if err != nil {
		http.Error(w, "could not open file", http.StatusNotFound)
		return
	}
	defer src.Close()

	ranges, err := bytesource.ParseRangeSegments(segments)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}

	var chunks [][]byte
	for _, rg := range ranges {
		buf := make([]byte, rg.Length)
		if _, err := src.ReadAt(ctx, rg.Offset, buf); err != nil {
			http.Error(w, "could not read range", http.StatusInternalServerError)
			return
		}
		chunks = append(chunks, buf)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(wire.EncodeRangeResponse(chunks))
}

// caseFile is one entry in a /slide_set/<case> response: a scanner case
// is often split across several companion files (the pyramid itself,
// plus macro/label captures) sharing a filename prefix.
type caseFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// slideSetHandler serves /slide_set/<case>: every file directly under
// root whose name starts with <case> is reported as part of that case,
// letting a client discover companion files before opening any of them.
func slideSetHandler(root string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseName := strings.TrimPrefix(r.URL.Path, "/slide_set/")
		if caseName == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			http.Error(w, "could not list directory", http.StatusInternalServerError)
			return
		}

		var files []caseFile
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), caseName) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, caseFile{Name: entry.Name(), Size: info.Size()})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(files); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
