// Package ids generates share identifiers, flow identifiers and access tokens.
package ids

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator produces opaque unique identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so share and flow
// ids sort by creation time in listings and logs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// TokenGenerator generates unguessable access tokens: 122 random bits from a
// UUIDv4, rendered as 32 lowercase hex characters without hyphens.
type TokenGenerator struct{}

// Generate returns a fresh access token.
func (TokenGenerator) Generate() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewRandom()).String(), "-", "")
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	values []string
	idx    int
}

// NewFixedGenerator creates a generator that returns values in order.
//
//	gen := NewFixedGenerator("share-1", "share-2")
//	gen.Generate() // "share-1"
//	gen.Generate() // "share-2"
//	gen.Generate() // panic: all values exhausted
func NewFixedGenerator(values ...string) *FixedGenerator {
	return &FixedGenerator{values: values}
}

// Generate returns the next predetermined value.
//
// Panics if all values have been consumed, which catches tests that create
// more entities than they planned for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.values) {
		panic("FixedGenerator: all values exhausted")
	}
	v := g.values[g.idx]
	g.idx++
	return v
}
