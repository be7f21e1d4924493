package clustering

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// IDGenerator produces cluster identifiers. It is injected into the engine
// so tests and callers can substitute a deterministic source.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a plain function to the IDGenerator interface.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewID() string {
	return f()
}

type randomIDGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomIDGenerator returns the default generator: wall-clock milliseconds
// plus a uniform four-digit suffix. Collisions only cause cosmetic confusion,
// so the source does not need to be cryptographic.
func NewRandomIDGenerator() IDGenerator {
	return &randomIDGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *randomIDGenerator) NewID() string {
	g.mu.Lock()
	suffix := 1000 + g.rng.Intn(9000)
	g.mu.Unlock()
	return fmt.Sprintf("cluster_%d_%d", time.Now().UnixMilli(), suffix)
}
