package bytesource

import (
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestNewS3SourceStoresBucketAndObject(t *testing.T) {
	// A live minio.Client isn't needed for this: NewS3Source only wires
	// together the fields ReadAt/ReadBatch later use, exercised against a
	// real endpoint in integration environments rather than here.
	client := &minio.Client{}
	src := NewS3Source(client, "slides", "sample.tiff")
	assert.Equal(t, "slides", src.bucket)
	assert.Equal(t, "sample.tiff", src.object)
	assert.Same(t, client, src.client)
}
