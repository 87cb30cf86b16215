package cache

import "fmt"

// FetchCache is a cache whose lines must be fetched (reserved and, on a
// miss, scheduled for a memory transfer) before they can be read or written.
//
// Lines carry a reservation counter. A line with a non-zero counter is never
// chosen as a victim. Misses are not served by the cache itself: they are
// queued as CacheRequests that the owning unit drains with GetRequest and
// completes with FreeRequest.
//
// Per-line state is stored in flat slices indexed by way*lines+line.
type FetchCache struct {
	name   string
	config Config

	tags    *TagStore
	victims *victimSelector
	queue   *RequestQueue

	data      []byte
	writeMask []bool
	reserve   []int
	replacing []bool
	masked    []bool

	stats Statistics
}

// NewFetchCache creates a fetch cache. It panics if the configuration is
// invalid.
func NewFetchCache(name string, config Config) *FetchCache {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("FetchCache %s: %v", name, err))
	}

	n := config.Ways * config.Lines

	return &FetchCache{
		name:      name,
		config:    config,
		tags:      NewTagStore(config.Ways, config.Lines, config.LineSize),
		victims:   newVictimSelector(config.Ways, config.Lines),
		queue:     NewRequestQueue(name, config.RequestQueueSize),
		data:      make([]byte, n*config.LineSize),
		writeMask: make([]bool, n*config.LineSize),
		reserve:   make([]int, n),
		replacing: make([]bool, n),
		masked:    make([]bool, n),
	}
}

// Name returns the cache name.
func (c *FetchCache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *FetchCache) Config() Config {
	return c.config
}

// LineSize returns the line size in bytes.
func (c *FetchCache) LineSize() int {
	return c.config.LineSize
}

// Tags returns the underlying tag store.
func (c *FetchCache) Tags() *TagStore {
	return c.tags
}

// Stats returns cache statistics.
func (c *FetchCache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *FetchCache) ResetStats() {
	c.stats = Statistics{}
}

func (c *FetchCache) index(loc Location) int {
	return loc.Way*c.config.Lines + loc.Line
}

func (c *FetchCache) lineData(i int) []byte {
	return c.data[i*c.config.LineSize : (i+1)*c.config.LineSize]
}

func (c *FetchCache) lineMask(i int) []bool {
	return c.writeMask[i*c.config.LineSize : (i+1)*c.config.LineSize]
}

// Fetch reserves the line holding addr. On a miss a victim line is claimed
// and a fill request (plus a spill if the victim is dirty) is queued. The
// line cannot be read until the request is freed.
func (c *FetchCache) Fetch(
	addr uint64,
	reserves int,
	source TraceTag,
) (Location, error) {
	loc, _, err := c.fetch(addr, false, reserves, source)
	return loc, err
}

// FetchMissBudget is Fetch for units that cap misses per cycle. When
// noNewMiss is set, a miss fails with ErrMissBudget without changing any
// state. The returned flag reports whether the access missed.
func (c *FetchCache) FetchMissBudget(
	addr uint64,
	noNewMiss bool,
	reserves int,
	source TraceTag,
) (Location, bool, error) {
	return c.fetch(addr, noNewMiss, reserves, source)
}

func (c *FetchCache) fetch(
	addr uint64,
	noNewMiss bool,
	reserves int,
	source TraceTag,
) (Location, bool, error) {
	c.stats.Fetches++

	lineAddr := c.tags.Align(addr)
	loc, found := c.tags.Search(lineAddr)

	// A masked line only hits once every byte has been written.
	if found && (!c.masked[c.index(loc)] || c.IsFullyWritten(loc)) {
		c.reserve[c.index(loc)] += reserves
		c.stats.Hits++
		return loc, false, nil
	}

	c.stats.Misses++

	if noNewMiss {
		return Location{}, true, ErrMissBudget
	}

	line := c.tags.LineIndex(lineAddr)
	prevFirst := c.victims.firstWay[line]

	if found {
		// Partially written masked line. The way is refilled in place, which
		// is only safe when nobody holds it and no transfer is in flight.
		if c.reserve[c.index(loc)] != 0 || c.replacing[c.index(loc)] {
			c.stats.ReserveBusy++
			return Location{}, true, ErrReservedBusy
		}
	} else {
		loc = Location{Way: c.victims.next(line, c.busy(line)), Line: line}
	}

	i := c.index(loc)
	if c.reserve[i] != 0 || c.replacing[i] {
		c.victims.firstWay[line] = prevFirst
		c.stats.ReserveBusy++
		return Location{}, true, ErrReservedBusy
	}

	req := CacheRequest{
		InAddress:  lineAddr,
		OutAddress: c.tags.LineAddress(loc),
		Loc:        loc,
		Spill:      c.tags.Valid(loc) && c.tags.Dirty(loc),
		Fill:       true,
		Masked:     c.masked[i],
		Source:     source,
	}

	if _, ok := c.queue.Push(req); !ok {
		c.victims.firstWay[line] = prevFirst
		c.stats.QueueFull++
		return Location{}, true, ErrQueueFull
	}

	if req.Spill {
		c.stats.Spills++
	}
	c.stats.Fills++

	c.tags.SetTag(loc, lineAddr)
	c.tags.SetDirty(loc, false)
	c.reserve[i] += reserves
	c.replacing[i] = true
	c.masked[i] = false

	return loc, true, nil
}

// Allocate reserves the line holding addr for write buffer use. A miss never
// fills the line from memory: the line is claimed in masked mode and only a
// spill of the previous dirty contents is queued. A miss fails with
// ErrReservedBusy while an earlier copy of the line is still being spilled.
func (c *FetchCache) Allocate(
	addr uint64,
	reserves int,
	source TraceTag,
) (Location, error) {
	c.stats.Allocates++

	lineAddr := c.tags.Align(addr)
	if loc, found := c.tags.Search(lineAddr); found {
		c.reserve[c.index(loc)] += reserves
		c.stats.Hits++
		return loc, nil
	}

	c.stats.Misses++

	if c.queue.SpillPending(lineAddr) {
		c.stats.ReserveBusy++
		return Location{}, ErrReservedBusy
	}

	line := c.tags.LineIndex(lineAddr)
	prevFirst := c.victims.firstWay[line]
	loc := Location{Way: c.victims.next(line, c.busy(line)), Line: line}
	i := c.index(loc)

	if c.reserve[i] != 0 || c.replacing[i] {
		c.victims.firstWay[line] = prevFirst
		c.stats.ReserveBusy++
		return Location{}, ErrReservedBusy
	}

	if c.tags.Valid(loc) && c.tags.Dirty(loc) {
		req := CacheRequest{
			OutAddress: c.tags.LineAddress(loc),
			Loc:        loc,
			Spill:      true,
			Masked:     c.masked[i],
			Source:     source,
		}

		if _, ok := c.queue.Push(req); !ok {
			c.victims.firstWay[line] = prevFirst
			c.stats.QueueFull++
			return Location{}, ErrQueueFull
		}

		c.stats.Spills++
		c.replacing[i] = true
	} else {
		c.clearMask(i)
	}

	c.tags.SetTag(loc, lineAddr)
	c.tags.SetDirty(loc, false)
	c.reserve[i] += reserves
	c.masked[i] = true

	return loc, nil
}

// busy reports the ways of a line that cannot be evicted: reserved ways and
// ways whose previous contents are still being transferred.
func (c *FetchCache) busy(line int) func(way int) bool {
	return func(way int) bool {
		i := c.index(Location{Way: way, Line: line})
		return c.reserve[i] > 0 || c.replacing[i]
	}
}

// checkAccess panics when an access is malformed or targets a line that does
// not hold the address.
func (c *FetchCache) checkAccess(op string, addr uint64, loc Location, size int) int {
	if size%4 != 0 {
		panic(fmt.Sprintf("FetchCache.%s: size %d is not a multiple of 4", op, size))
	}
	if size > c.config.LineSize {
		panic(fmt.Sprintf("FetchCache.%s: size %d larger than a line", op, size))
	}

	offset := int(addr-c.tags.Align(addr)) &^ 0x3
	if offset+size > c.config.LineSize {
		panic(fmt.Sprintf("FetchCache.%s: access beyond the line", op))
	}
	if c.tags.LineAddress(loc) != c.tags.Align(addr) {
		panic(fmt.Sprintf("FetchCache.%s: address %#x was not fetched", op, addr))
	}

	return offset
}

// Read copies size bytes at addr into buf. It returns false while the line
// is still being replaced.
func (c *FetchCache) Read(addr uint64, loc Location, size int, buf []byte) bool {
	offset := c.checkAccess("Read", addr, loc, size)

	i := c.index(loc)
	if c.replacing[i] {
		return false
	}

	copy(buf[:size], c.lineData(i)[offset:offset+size])
	c.victims.access(loc)
	c.stats.Reads++

	return true
}

// Write copies size bytes from buf into the line, marks it dirty and drops
// one reservation. On a line in write buffer mode the bytes are also
// recorded as written. It returns false while the line is still being
// replaced.
func (c *FetchCache) Write(addr uint64, loc Location, size int, buf []byte) bool {
	offset := c.checkAccess("Write", addr, loc, size)

	i := c.index(loc)
	if c.replacing[i] {
		return false
	}

	copy(c.lineData(i)[offset:offset+size], buf[:size])
	if c.masked[i] {
		written := c.lineMask(i)
		for b := offset; b < offset+size; b++ {
			written[b] = true
		}
	}
	c.tags.SetDirty(loc, true)
	c.Unreserve(loc)
	c.victims.access(loc)
	c.stats.Writes++

	return true
}

// WriteMasked writes only the bytes whose mask entry is set and records them
// in the line write mask.
func (c *FetchCache) WriteMasked(
	addr uint64,
	loc Location,
	size int,
	buf []byte,
	mask []bool,
) bool {
	offset := c.checkAccess("WriteMasked", addr, loc, size)

	i := c.index(loc)
	if c.replacing[i] {
		return false
	}

	data := c.lineData(i)
	written := c.lineMask(i)
	anyWrite := false

	for b := 0; b < size; b++ {
		if mask[b] {
			data[offset+b] = buf[b]
			written[offset+b] = true
			anyWrite = true
		}
	}

	if anyWrite {
		c.tags.SetDirty(loc, true)
	}
	c.Unreserve(loc)
	c.victims.access(loc)
	c.stats.Writes++

	return true
}

// ReadLine copies a full line into buf.
func (c *FetchCache) ReadLine(loc Location, buf []byte) bool {
	copy(buf, c.lineData(c.index(loc)))
	return true
}

// WriteLine replaces a full line. The line becomes clean and its write mask
// is cleared.
func (c *FetchCache) WriteLine(loc Location, buf []byte) bool {
	i := c.index(loc)
	copy(c.lineData(i), buf)
	c.clearMask(i)
	c.tags.SetDirty(loc, false)

	return true
}

// ReadMask expands the write mask of a line into one word per 4 bytes, with
// 0xff in every written byte position.
func (c *FetchCache) ReadMask(loc Location, mask []uint32) {
	written := c.lineMask(c.index(loc))

	for w := 0; w < c.config.LineSize/4; w++ {
		var word uint32
		for b := 0; b < 4; b++ {
			if written[w*4+b] {
				word |= 0xff << (8 * b)
			}
		}
		mask[w] = word
	}
}

// ResetMask clears the write mask of a line.
func (c *FetchCache) ResetMask(loc Location) {
	c.clearMask(c.index(loc))
}

func (c *FetchCache) clearMask(i int) {
	mask := c.lineMask(i)
	for b := range mask {
		mask[b] = false
	}
}

// Unreserve drops one reservation of a line.
func (c *FetchCache) Unreserve(loc Location) {
	i := c.index(loc)
	if c.reserve[i] > 0 {
		c.reserve[i]--
	}
}

// Reserves returns the reservation count of a line.
func (c *FetchCache) Reserves(loc Location) int {
	return c.reserve[c.index(loc)]
}

// IsReplacing reports whether a spill or fill of the line is outstanding.
func (c *FetchCache) IsReplacing(loc Location) bool {
	return c.replacing[c.index(loc)]
}

// IsMasked reports whether the line is in write buffer mode.
func (c *FetchCache) IsMasked(loc Location) bool {
	return c.masked[c.index(loc)]
}

// IsDirty reports whether the line holds unwritten data.
func (c *FetchCache) IsDirty(loc Location) bool {
	return c.tags.Dirty(loc)
}

// IsFullyWritten reports whether every byte of the line write mask is set.
func (c *FetchCache) IsFullyWritten(loc Location) bool {
	for _, w := range c.lineMask(c.index(loc)) {
		if !w {
			return false
		}
	}
	return true
}

// GetRequest takes the oldest queued request. The slot stays allocated
// until both halves are released with FreeRequest.
func (c *FetchCache) GetRequest() (int, *CacheRequest, bool) {
	return c.queue.Pop()
}

// Request returns the request stored in a slot.
func (c *FetchCache) Request(id int) *CacheRequest {
	return c.queue.Get(id)
}

// FreeRequest marks the spill and/or fill half of a request as done. The
// slot is recycled, and the line becomes available, only when both halves
// are done.
func (c *FetchCache) FreeRequest(id int, freeSpill, freeFill bool) {
	req := c.queue.Get(id)
	if req.Free {
		panic(fmt.Sprintf("FetchCache.FreeRequest: request %d is not in use", id))
	}

	req.Spill = req.Spill && !freeSpill
	req.Fill = req.Fill && !freeFill

	if req.Spill || req.Fill {
		return
	}

	i := c.index(req.Loc)
	c.replacing[i] = false
	c.clearMask(i)
	c.queue.Release(id)
}

// SpillPending reports whether the line holding addr is still waiting to be
// written to memory by an earlier spill.
func (c *FetchCache) SpillPending(addr uint64) bool {
	return c.queue.SpillPending(c.tags.Align(addr))
}

// PendingRequests returns the number of requests not yet taken.
func (c *FetchCache) PendingRequests() int {
	return c.queue.Pending()
}

// FreeRequests returns the number of free request slots.
func (c *FetchCache) FreeRequests() int {
	return c.queue.FreeSlots()
}

// Flush queues a spill for every valid line and invalidates it, as far as
// free request slots allow. It returns true once no valid line is left and
// every request has completed.
func (c *FetchCache) Flush() bool {
	remaining := false

	for line := 0; line < c.config.Lines; line++ {
		for way := 0; way < c.config.Ways; way++ {
			loc := Location{Way: way, Line: line}
			i := c.index(loc)

			if !c.tags.Valid(loc) {
				continue
			}

			if c.replacing[i] || c.queue.FreeSlots() == 0 {
				remaining = true
				continue
			}

			c.queue.Push(CacheRequest{
				OutAddress: c.tags.LineAddress(loc),
				Loc:        loc,
				Spill:      true,
				Masked:     c.masked[i],
			})
			c.replacing[i] = true
			c.tags.Invalidate(loc)
			c.stats.Spills++
		}
	}

	return !remaining && c.queue.FreeSlots() == c.queue.Capacity()
}

// Reset invalidates every line and frees every request slot.
func (c *FetchCache) Reset() {
	c.tags.Reset()
	c.victims.reset()
	c.queue.Reset()

	for i := range c.reserve {
		c.reserve[i] = 0
		c.replacing[i] = false
		c.masked[i] = false
	}
	for b := range c.writeMask {
		c.writeMask[b] = false
	}
}
