package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}

func TestWithImageAttachesImageID(t *testing.T) {
	var buf bytes.Buffer
	logger := WithImage(newTestLogger(&buf), "slide-42")
	logger.Info("opened")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "slide-42", entry["image_id"])
}

func TestLogTileFailureWritesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	LogTileFailure(context.Background(), logger, 2, 3, 4, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "tile decode failed", entry["msg"])
	assert.EqualValues(t, 4, entry["tile_y"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogOpenFailureWritesErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	LogOpenFailure(context.Background(), logger, "slide.tiff", errors.New("truncated"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "image open failed", entry["msg"])
	assert.Equal(t, "slide.tiff", entry["source"])
}

func TestDefaultOptionsLogsInfoToStderr(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, slog.LevelInfo, opts.Level)
	assert.True(t, opts.AlsoStderr)
	assert.Empty(t, opts.FilePath)
}

func TestNewWithFilePathUsesRotatingWriter(t *testing.T) {
	dir := t.TempDir()
	logger := New(Options{FilePath: dir + "/app.log", Level: slog.LevelInfo})
	require.NotNil(t, logger)
	// New must not panic building a file-backed handler; actual rotation
	// behaviour belongs to lumberjack and isn't re-tested here.
	logger.Info("started")
}
