// Package ident hands out component identifiers.
package ident

import (
	"sync"
	"sync/atomic"
)

// Factory generates sequential identifiers per component kind. Components
// receive a factory at construction instead of keeping their own counters,
// so independent simulations number their units independently.
type Factory struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// NewFactory creates a factory with every counter at zero.
func NewFactory() *Factory {
	return &Factory{counters: make(map[string]*atomic.Int64)}
}

// Next returns the next identifier for a kind, starting at 0.
func (f *Factory) Next(kind string) int {
	return int(f.counter(kind).Add(1) - 1)
}

// Count returns how many identifiers of a kind were handed out.
func (f *Factory) Count(kind string) int {
	return int(f.counter(kind).Load())
}

func (f *Factory) counter(kind string) *atomic.Int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.counters[kind]
	if !ok {
		c = &atomic.Int64{}
		f.counters[kind] = c
	}

	return c
}
