// Package cache provides the reservation-aware fetch cache used by the GPU
// render output and texture units, built on Akita cache components.
package cache

import (
	"errors"
	"fmt"
)

// Errors returned by Fetch and Allocate when a resource is exhausted. The
// caller is expected to retry in a later cycle.
var (
	// ErrReservedBusy means every candidate victim line is reserved.
	ErrReservedBusy = errors.New("no unreserved line available")
	// ErrQueueFull means no request queue slot is free.
	ErrQueueFull = errors.New("request queue full")
	// ErrMissBudget means the access missed after the miss budget for the
	// cycle was spent.
	ErrMissBudget = errors.New("miss budget exhausted")
)

// Config holds fetch cache configuration parameters.
type Config struct {
	// Ways is the associativity
	Ways int `json:"ways"`
	// Lines is the number of lines per way
	Lines int `json:"lines"`
	// LineSize in bytes
	LineSize int `json:"line_size"`
	// RequestQueueSize is the number of outstanding spill/fill requests
	RequestQueueSize int `json:"request_queue_size"`
}

// Validate checks the cache geometry.
func (c Config) Validate() error {
	if c.Ways <= 0 {
		return fmt.Errorf("ways must be > 0")
	}
	if c.Lines <= 0 {
		return fmt.Errorf("lines must be > 0")
	}
	if c.LineSize <= 0 || c.LineSize&(c.LineSize-1) != 0 {
		return fmt.Errorf("line_size must be a power of two")
	}
	if c.LineSize%4 != 0 {
		return fmt.Errorf("line_size must be a multiple of 4")
	}
	if c.RequestQueueSize <= 0 {
		return fmt.Errorf("request_queue_size must be > 0")
	}
	return nil
}

// Statistics holds fetch cache statistics.
type Statistics struct {
	Fetches     uint64
	Allocates   uint64
	Hits        uint64
	Misses      uint64
	ReserveBusy uint64
	QueueFull   uint64
	Spills      uint64
	Fills       uint64
	Reads       uint64
	Writes      uint64
}

// HitRate returns the fraction of fetches and allocations that hit.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
