// Package logging sets up the process-wide structured logger: slog for
// leveled, attributed logging (matching the jpfielding tool's own
// slog.SetDefault(logging.Logger(...)) setup) writing through a
// lumberjack.Logger so log files rotate instead of growing unbounded.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where logs go and how they rotate.
type Options struct {
	// FilePath is where logs are written; empty means stderr only.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
	AlsoStderr bool
}

// DefaultOptions logs to stderr only, at Info level.
func DefaultOptions() Options {
	return Options{Level: slog.LevelInfo, AlsoStderr: true}
}

// New builds the process logger per opts. Decode-layer errors (tile
// failures that don't tear down the image) should be logged at Warn;
// image-open failures at Error; lifecycle events (image opened/closed,
// bootstrap complete) at Info.
func New(opts Options) *slog.Logger {
	var w io.Writer
	switch {
	case opts.FilePath == "":
		w = os.Stderr
	case opts.AlsoStderr:
		w = io.MultiWriter(os.Stderr, rotatingWriter(opts))
	default:
		w = rotatingWriter(opts)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(handler)
}

func rotatingWriter(opts Options) *lumberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 28
	}
	return &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}
}

// WithImage returns a logger scoped to one open image, for per-tile
// decode logging.
func WithImage(logger *slog.Logger, imageID string) *slog.Logger {
	return logger.With(slog.String("image_id", imageID))
}

// LogTileFailure logs a non-fatal per-tile decode failure at Warn: the
// tile renders as background and the viewer continues.
func LogTileFailure(ctx context.Context, logger *slog.Logger, level, tileX, tileY int, err error) {
	logger.WarnContext(ctx, "tile decode failed",
		slog.Int("level", level), slog.Int("tile_x", tileX), slog.Int("tile_y", tileY),
		slog.String("error", err.Error()))
}

// LogOpenFailure logs a fatal image-open failure at Error.
func LogOpenFailure(ctx context.Context, logger *slog.Logger, source string, err error) {
	logger.ErrorContext(ctx, "image open failed", slog.String("source", source), slog.String("error", err.Error()))
}
