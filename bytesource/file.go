package bytesource

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileSource is a ByteSource backed by a local, already-open file. Multiple
// goroutines may call ReadAt concurrently: os.File.ReadAt is safe for
// concurrent use because it never mutates shared seek state.
type FileSource struct {
	f    *os.File
	path string
}

// OpenFile opens path and wraps it as a Source. The caller must Close the
// returned Source when done; the underlying file stays open for as long as
// any Image backed by it is in use (see package slide).
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: open %s: %w", path, err)
	}
	return &FileSource{f: f, path: path}, nil
}

// Path returns the filesystem path this source was opened from, for
// backends (like OpenSlide) whose C API only accepts a path, not a
// byte-range interface.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) ReadAt(_ context.Context, offset int64, dst []byte) (int, error) {
	n, err := s.f.ReadAt(dst, offset)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n < len(dst) {
		return n, ErrShort
	}
	return n, nil
}

func (s *FileSource) ReadBatch(ctx context.Context, ranges []Range) ([]byte, error) {
	return ReadBatchSequential(ctx, s, ranges)
}

func (s *FileSource) Close() error {
	return s.f.Close()
}

// Size returns the file length in bytes, used by callers that need to
// validate tag-table offsets fall within the file.
func (s *FileSource) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
