// Package rop models the color and depth/stencil caches of the raster
// operation stage.
//
// A BlockCache sits between the ROP pipeline and memory. Lines are held in a
// FetchCache. Each line maps to a block of the framebuffer, and every block
// has a compression state kept in an on-chip table. Lines leaving the cache
// are compressed before being written to memory, and lines entering it are
// read at the size given by their block state and decompressed. Blocks in
// the Clear state are never read: they are filled with the clear value.
package rop

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gpucachesim/timing/cache"
	"github.com/sarchlab/gpucachesim/timing/compression"
	"github.com/sarchlab/gpucachesim/timing/mem"
)

// DefaultBufferAddress is the buffer base address after a reset.
const DefaultBufferAddress = 0x200000

// readEntry tracks a fill from the memory request to the cache line write.
type readEntry struct {
	address   uint64
	block     int
	state     BlockState
	size      int
	requested int
	received  int
	reqID     int
	loc       cache.Location
	source    cache.TraceTag
	// writeWait holds the line write until the paired spill has read the
	// old contents out of the cache.
	writeWait bool
	// spillWait holds the memory read until the paired spill of the same
	// address has been written to memory.
	spillWait bool
	buf       []byte
}

// writeEntry tracks a spill from the cache line read to the memory write.
type writeEntry struct {
	address uint64
	block   int
	size    int
	written int
	reqID   int
	loc     cache.Location
	masked  bool
	source  cache.TraceTag
	fill    *readEntry
	data    []byte
	mask    []uint32
}

// BlockCache is a compressed framebuffer cache.
type BlockCache struct {
	name       string
	config     Config
	unit       mem.SourceUnit
	id         int
	compressor compression.Compressor

	lineSize   int
	lineShift  int
	stampBytes int
	compress   bool

	lines *cache.FetchCache

	mode         Mode
	resetPending bool
	keepRegs     bool
	clearCycles  int
	flushing     bool
	flushRequest bool
	fetched      bool

	base          uint64
	bytesPerPixel int
	clearPixel    []uint32
	states        []BlockState

	stateAddress      uint64
	saving            bool
	saveRequest       bool
	stateOut          []byte
	savedBytes        int
	stateWrite        bool
	restoring         bool
	restoreRequest    bool
	stateIn           *readEntry
	resettingState    bool
	resetStateRequest bool
	resetStateCycles  int

	readCycles    []int
	writeCycles   []int
	readLinePort  int
	writeLinePort int
	readingLine   *writeEntry
	writingLine   *readEntry

	request   *cache.CacheRequest
	requestID int

	reads  []*readEntry
	writes []*writeEntry

	inputs       sim.Buffer
	received     sim.Buffer
	uncompressed sim.Buffer
	outputs      sim.Buffer
	toCompress   sim.Buffer
	compressed   sim.Buffer

	decompressing *readEntry
	decompCycles  int
	compressing   *writeEntry
	compCycles    int

	memState    mem.MemState
	memCycles   int
	memRead     bool
	memWrite    bool
	readTicket  uint32
	lastSize    int
	freeTickets int
	nextTicket  uint32
	tickets     [mem.MaxMemoryTickets]*readEntry

	next  *mem.Transaction
	stats Statistics
}

// NewBlockCache creates a block cache. It panics if the configuration is
// invalid. The cache starts in the Resetting mode.
func NewBlockCache(
	name string,
	config Config,
	compressor compression.Compressor,
	unit mem.SourceUnit,
	id int,
) *BlockCache {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("BlockCache %s: %v", name, err))
	}
	if compressor == nil {
		panic(fmt.Sprintf("BlockCache %s: no compressor", name))
	}

	lineSize := config.LineSize()

	c := &BlockCache{
		name:       name,
		config:     config,
		unit:       unit,
		id:         id,
		compressor: compressor,
		lineSize:   lineSize,
		lineShift:  bits.TrailingZeros(uint(lineSize)),
		stampBytes: config.BytesPerStamp,
		compress:   !config.DisableCompression,
		lines: cache.NewFetchCache(name+".Lines", cache.Config{
			Ways:             config.Ways,
			Lines:            config.Lines,
			LineSize:         lineSize,
			RequestQueueSize: config.RequestQueueSize,
		}),
		states:       make([]BlockState, config.MaxBlocks),
		readCycles:   make([]int, config.ReadPorts),
		writeCycles:  make([]int, config.WritePorts),
		inputs:       sim.NewBuffer(name+".Inputs", config.InputRequests),
		received:     sim.NewBuffer(name+".Received", config.InputRequests),
		uncompressed: sim.NewBuffer(name+".Uncompressed", config.InputRequests),
		outputs:      sim.NewBuffer(name+".Outputs", config.OutputRequests),
		toCompress:   sim.NewBuffer(name+".ToCompress", config.OutputRequests),
		compressed:   sim.NewBuffer(name+".Compressed", config.OutputRequests),
		mode:         Resetting,
	}

	c.performReset()
	c.resetPending = true

	return c
}

// Name returns the cache name.
func (c *BlockCache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *BlockCache) Config() Config {
	return c.config
}

// FetchCache returns the line store.
func (c *BlockCache) FetchCache() *cache.FetchCache {
	return c.lines
}

// Stats returns the activity counters.
func (c *BlockCache) Stats() Statistics {
	return c.stats
}

// State returns the operating mode.
func (c *BlockCache) State() Mode {
	return c.mode
}

// Flushing reports whether a flush is in progress.
func (c *BlockCache) Flushing() bool {
	return c.flushing
}

// ClearValue returns the first word of the committed clear pixel.
func (c *BlockCache) ClearValue() uint32 {
	return c.clearPixel[0]
}

// ClearPixel returns the committed clear pixel.
func (c *BlockCache) ClearPixel() []uint32 {
	return append([]uint32(nil), c.clearPixel...)
}

// BytesPerPixel returns the pixel size of the cached buffer.
func (c *BlockCache) BytesPerPixel() int {
	return c.bytesPerPixel
}

// SetBytesPerPixel sets the pixel size of the cached buffer: 4, 8 or 16
// bytes. A reset restores 4.
func (c *BlockCache) SetBytesPerPixel(n int) {
	if n != 4 && n != 8 && n != 16 {
		panic(fmt.Sprintf("BlockCache %s: unsupported pixel size %d", c.name, n))
	}
	if c.lineSize%n != 0 || c.stampBytes%n != 0 {
		panic(fmt.Sprintf("BlockCache %s: pixel size %d does not divide a stamp", c.name, n))
	}

	c.bytesPerPixel = n
}

// BufferAddress returns the base address of the cached buffer.
func (c *BlockCache) BufferAddress() uint64 {
	return c.base
}

// Idle reports whether no line or state transfer is outstanding.
func (c *BlockCache) Idle() bool {
	return !c.saving &&
		!c.restoring &&
		c.request == nil &&
		len(c.reads) == 0 &&
		len(c.writes) == 0 &&
		c.lines.PendingRequests() == 0 &&
		c.memCycles == 0
}

func (c *BlockCache) ready() bool {
	return c.mode == Normal && !c.resetPending
}

// AddressToBlock returns the block holding a buffer address.
func (c *BlockCache) AddressToBlock(addr uint64) int {
	if addr < c.base {
		panic(fmt.Sprintf("BlockCache %s: address %#x below buffer %#x",
			c.name, addr, c.base))
	}

	block := int((addr - c.base) >> c.lineShift)
	if block >= c.config.MaxBlocks {
		panic(fmt.Sprintf("BlockCache %s: address %#x beyond %d blocks",
			c.name, addr, c.config.MaxBlocks))
	}

	return block
}

// BlockState returns the state of a block.
func (c *BlockCache) BlockState(block int) BlockState {
	return c.states[block]
}

// SaveBlockState returns a copy of the block state table without going
// through memory. SaveState is the timed equivalent.
func (c *BlockCache) SaveBlockState() []BlockState {
	return append([]BlockState(nil), c.states...)
}

// RestoreBlockState loads the first len(states) entries of the block state
// table without going through memory. RestoreState is the timed equivalent.
func (c *BlockCache) RestoreBlockState(states []BlockState) {
	if len(states) > len(c.states) {
		panic(fmt.Sprintf("BlockCache %s: restoring %d blocks into a table of %d",
			c.name, len(states), len(c.states)))
	}

	copy(c.states, states)
}

// SetCompression enables or disables block compression.
func (c *BlockCache) SetCompression(enabled bool) {
	c.compress = enabled
}

// Fetch reserves the line holding addr. Only one fetch or allocation is
// accepted per cycle.
func (c *BlockCache) Fetch(addr uint64, source cache.TraceTag) (cache.Location, bool) {
	if !c.ready() || c.fetched {
		c.stats.FetchRejects++
		return cache.Location{}, false
	}
	c.fetched = true
	c.stats.Fetches++

	loc, err := c.lines.Fetch(addr, 1, source)
	if err != nil {
		return cache.Location{}, false
	}

	return loc, true
}

// Allocate reserves the line holding addr for writing. Lines of Clear or
// Uncompressed blocks are claimed without reading memory. Lines of
// compressed blocks must be read back, so they are fetched. An allocation
// waits while a spill of the block is queued, held or being written to
// memory, since the block state is only final once that spill completes.
func (c *BlockCache) Allocate(addr uint64, source cache.TraceTag) (cache.Location, bool) {
	if !c.ready() || c.fetched {
		c.stats.FetchRejects++
		return cache.Location{}, false
	}
	c.fetched = true
	c.stats.Allocates++

	block := c.AddressToBlock(c.lines.Tags().Align(addr))
	if c.lines.SpillPending(addr) {
		c.stats.HazardStalls++
		return cache.Location{}, false
	}

	var loc cache.Location
	var err error

	switch c.states[block] {
	case Clear, Uncompressed:
		loc, err = c.lines.Allocate(addr, 1, source)
	default:
		loc, err = c.lines.Fetch(addr, 1, source)
	}

	if err != nil {
		return cache.Location{}, false
	}

	return loc, true
}

func freePort(cycles []int) int {
	for i, n := range cycles {
		if n == 0 {
			return i
		}
	}
	return -1
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Read reads a stamp through a free read port.
func (c *BlockCache) Read(addr uint64, loc cache.Location, buf []byte) bool {
	if !c.ready() {
		return false
	}

	port := freePort(c.readCycles)
	if port < 0 {
		c.stats.PortStalls++
		return false
	}

	if !c.lines.Read(addr, loc, c.stampBytes, buf) {
		return false
	}

	c.readCycles[port] += ceilDiv(c.stampBytes, c.config.PortWidth)

	return true
}

// Write writes a stamp through a free write port and drops the reservation.
func (c *BlockCache) Write(addr uint64, loc cache.Location, buf []byte) bool {
	if !c.ready() {
		return false
	}

	port := freePort(c.writeCycles)
	if port < 0 {
		c.stats.PortStalls++
		return false
	}

	if !c.lines.Write(addr, loc, c.stampBytes, buf) {
		return false
	}

	c.writeCycles[port] += ceilDiv(c.stampBytes, c.config.PortWidth)

	return true
}

// WriteMasked writes the bytes of a stamp selected by mask.
func (c *BlockCache) WriteMasked(
	addr uint64,
	loc cache.Location,
	buf []byte,
	mask []bool,
) bool {
	if !c.ready() {
		return false
	}

	port := freePort(c.writeCycles)
	if port < 0 {
		c.stats.PortStalls++
		return false
	}

	if !c.lines.WriteMasked(addr, loc, c.stampBytes, buf, mask) {
		return false
	}

	c.writeCycles[port] += ceilDiv(c.stampBytes, c.config.PortWidth)

	return true
}

// Unreserve drops a reservation on a line.
func (c *BlockCache) Unreserve(loc cache.Location) {
	c.lines.Unreserve(loc)
}

// Reset discards every line and sets all blocks to Clear on the next cycle.
// A clear in progress is abandoned.
func (c *BlockCache) Reset() {
	c.mode = Resetting
	c.resetPending = true
	c.keepRegs = false
}

// Flush writes every line back to memory. It is polled: the first call
// starts the flush, calls return true while it is in progress, and the first
// call after it completes returns false.
func (c *BlockCache) Flush() bool {
	if !c.flushRequest {
		c.flushRequest = true
		c.flushing = true
	} else if !c.flushing {
		c.flushRequest = false
	}

	return c.flushing
}

// Clear sets every block to Clear and, once done, commits value as the
// clear value of every pixel word. It is polled: the first call starts the
// clear and each following call advances it by one step. It returns false
// once the clear has completed.
func (c *BlockCache) Clear(value uint32) bool {
	return c.ClearPixels([]uint32{value})
}

// ClearPixels is Clear with a clear pixel of several words. The pixel
// repeats over the line, so its size must divide the pixel size.
func (c *BlockCache) ClearPixels(pixel []uint32) bool {
	if len(pixel) == 0 || (c.bytesPerPixel/4)%len(pixel) != 0 {
		panic(fmt.Sprintf("BlockCache %s: clear pixel of %d words for %d byte pixels",
			c.name, len(pixel), c.bytesPerPixel))
	}

	if c.mode != Clearing {
		c.clearCycles = ceilDiv(c.config.MaxBlocks, c.config.BlocksPerCycle)
		c.mode = Clearing
		c.resetPending = true
		c.keepRegs = true

		return true
	}

	if c.clearCycles > 0 {
		c.clearCycles--
		if c.clearCycles == 0 {
			c.clearPixel = append(c.clearPixel[:0], pixel...)
			c.mode = Normal
		}
	}

	return c.mode == Clearing
}

// Swap moves the cached buffer to a new base address.
func (c *BlockCache) Swap(base uint64) {
	c.base = base
}

// Update runs one cycle with the given memory controller state and returns
// the transaction issued in the cycle, if any.
func (c *BlockCache) Update(cycle uint64, state mem.MemState) *mem.Transaction {
	c.memState = state
	c.Clock(cycle)

	return c.next
}

// ProcessMemoryTransaction receives read data from the memory controller.
func (c *BlockCache) ProcessMemoryTransaction(t *mem.Transaction) {
	if t.Command != mem.ReadData {
		panic(fmt.Sprintf("BlockCache %s: unsupported transaction %v", c.name, t.Command))
	}
	if c.memCycles > 0 {
		panic(fmt.Sprintf("BlockCache %s: memory bus still busy", c.name))
	}

	e := c.tickets[t.Ticket%mem.MaxMemoryTickets]
	if e == nil {
		panic(fmt.Sprintf("BlockCache %s: unknown ticket %d", c.name, t.Ticket))
	}

	copy(e.buf[t.Address-e.address:], t.Data[:t.Size])

	c.readTicket = t.Ticket
	c.lastSize = t.Size
	c.memCycles = t.BusCycles()
	c.memRead = true
}
