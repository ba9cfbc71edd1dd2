package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialGenerator(t *testing.T) {
	gen := NewSequentialGenerator("share")
	assert.Equal(t, "share-1", gen.Generate())
	assert.Equal(t, "share-2", gen.Generate())
	assert.Equal(t, "share-3", gen.Generate())
}
