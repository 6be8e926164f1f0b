package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator hands out document ids of the form "<prefix>-001" so that
// fixtures sort the same way lexically and by creation.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	issued int
}

// NewIDGenerator returns a generator for prefix, "doc" when empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "doc"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return g.format(g.issued)
}

// Peek returns the id the next call to Next will return.
func (g *IDGenerator) Peek() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.format(g.issued + 1)
}

// Issued returns how many ids were handed out.
func (g *IDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issued
}

func (g *IDGenerator) format(n int) string {
	return fmt.Sprintf("%s-%03d", g.prefix, n)
}
