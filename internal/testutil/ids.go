package testutil

import (
	"fmt"
	"sync"
)

// SequentialGenerator returns prefix-1, prefix-2, ... without ever running out.
//
// Use it where a test does not know in advance how many ids it will consume;
// ids.FixedGenerator is preferred when the exact sequence matters.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator with the given prefix.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
