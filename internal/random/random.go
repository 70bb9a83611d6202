// Package random provides the injectable randomness used when picking
// templates, hooks and topic scores.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is a goroutine-safe random source.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Source seeded from the clock.
func New() *Source {
	return NewSeeded(uint64(time.Now().UnixNano()))
}

// NewSeeded returns a deterministic Source.
func NewSeeded(seed uint64) *Source {
	return &Source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// IntRange returns a value in [lo, hi].
func (s *Source) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.IntN(hi-lo+1)
}

// Index returns a value in [0, n). It returns 0 when n <= 0.
func (s *Source) Index(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Choice returns a random element of items and false when items is empty.
func Choice[T any](s *Source, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[s.Index(len(items))], true
}
