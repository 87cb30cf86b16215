package cache

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// TraceTag is a lightweight handle copied from the unit that caused a
// request. It travels by value with the request and the memory transactions
// generated for it.
type TraceTag struct {
	ID string
}

// IsZero reports whether the tag carries no source.
func (t TraceTag) IsZero() bool {
	return t.ID == ""
}

// CacheRequest describes one outstanding spill/fill transition of a line.
type CacheRequest struct {
	// InAddress is the line address to fill from memory.
	InAddress uint64
	// OutAddress is the line address to spill to memory.
	OutAddress uint64
	// Loc is the line being replaced.
	Loc Location
	// Spill is set while the old line contents still have to be written out.
	Spill bool
	// Fill is set while the new line contents still have to be loaded.
	Fill bool
	// Masked is set when the spilled line was in write buffer mode.
	Masked bool
	// Free is set while the slot is unused.
	Free bool
	// Source is copied from the unit that caused the request.
	Source TraceTag
}

// RequestQueue is a fixed-capacity set of request slots with a free ring and
// an active ring of slot indexes.
type RequestQueue struct {
	slots  []CacheRequest
	free   sim.Buffer
	active sim.Buffer
}

// NewRequestQueue creates a queue with size slots, all free.
func NewRequestQueue(name string, size int) *RequestQueue {
	q := &RequestQueue{
		slots:  make([]CacheRequest, size),
		free:   sim.NewBuffer(name+".FreeRequests", size),
		active: sim.NewBuffer(name+".ActiveRequests", size),
	}
	q.Reset()

	return q
}

// Capacity returns the number of slots.
func (q *RequestQueue) Capacity() int {
	return len(q.slots)
}

// FreeSlots returns the number of unused slots.
func (q *RequestQueue) FreeSlots() int {
	return q.free.Size()
}

// Pending returns the number of requests not yet taken by GetRequest.
func (q *RequestQueue) Pending() int {
	return q.active.Size()
}

// Reset frees every slot.
func (q *RequestQueue) Reset() {
	q.free.Clear()
	q.active.Clear()

	for i := range q.slots {
		q.slots[i] = CacheRequest{Free: true}
		q.free.Push(i)
	}
}

// Push stores a request in the next free slot and queues it on the active
// ring. It returns false if no slot is free.
func (q *RequestQueue) Push(req CacheRequest) (int, bool) {
	e := q.free.Pop()
	if e == nil {
		return 0, false
	}

	id := e.(int)
	req.Free = false
	q.slots[id] = req
	q.active.Push(id)

	return id, true
}

// Pop returns the oldest active request. The slot stays allocated until it
// is released.
func (q *RequestQueue) Pop() (int, *CacheRequest, bool) {
	e := q.active.Pop()
	if e == nil {
		return 0, nil, false
	}

	id := e.(int)

	return id, &q.slots[id], true
}

// Get returns the request stored in a slot.
func (q *RequestQueue) Get(id int) *CacheRequest {
	return &q.slots[id]
}

// SpillPending reports whether an allocated slot still has to write the line
// at addr to memory. Queued, taken and in-flight requests are all covered.
func (q *RequestQueue) SpillPending(addr uint64) bool {
	for i := range q.slots {
		s := &q.slots[i]
		if !s.Free && s.Spill && s.OutAddress == addr {
			return true
		}
	}

	return false
}

// Release returns a slot to the free ring.
func (q *RequestQueue) Release(id int) {
	if q.slots[id].Free {
		panic(fmt.Sprintf("RequestQueue: slot %d released twice", id))
	}

	q.slots[id].Free = true
	q.free.Push(id)
}
