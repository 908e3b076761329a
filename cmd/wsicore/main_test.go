package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeMapsKnownErrorSubstrings(t *testing.T) {
	assert.Equal(t, 3, exitCode(errors.New("slide: unsupported image format")))
	assert.Equal(t, 2, exitCode(errors.New("could not open file")))
	assert.Equal(t, 1, exitCode(errors.New("missing required argument")))
}
