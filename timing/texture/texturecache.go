// Package texture models the read-only cache of a texture unit.
//
// The cache is banked: each tag bank and each data bank serves up to
// MaxAccesses different lines or words per cycle, and repeated accesses to
// the same line or word in a cycle are bypassed. Lines are filled from
// memory through ticketed read transactions and are never written back.
package texture

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gpucachesim/timing/cache"
	"github.com/sarchlab/gpucachesim/timing/ident"
	"github.com/sarchlab/gpucachesim/timing/mem"
)

// BlackTexelAddress is used by samplers for texels outside a texture. It is
// never cached and always reads as zero.
const BlackTexelAddress uint64 = 0x00ffffffffffffff

// AddressSpaceMask selects the address space of a texture address. Only the
// uncompressed space, zero, is modelled.
const AddressSpaceMask uint64 = 0xff00000000000000

// ErrBankConflict is returned by Fetch when the tag bank of the address has
// no access left in the current cycle.
var ErrBankConflict = errors.New("texture: tag bank conflict")

var blackTexel = cache.Location{Way: -1, Line: -1}

// Statistics counts texture cache activity.
type Statistics struct {
	Fetches            uint64
	Misses             uint64
	FetchBankConflicts uint64
	ReadBankConflicts  uint64
	Reads              uint64
	Bypasses           uint64
	MemoryRequests     uint64
	MemoryLatency      uint64
	BytesRead          uint64
	LinesFilled        uint64
}

type fill struct {
	address   uint64
	size      int
	requested int
	received  int
	reqID     int
	loc       cache.Location
	source    cache.TraceTag
	buf       []byte
}

// Cache is a texture cache.
type Cache struct {
	name   string
	config Config
	id     int
	lines  *cache.FetchCache

	lineShift int
	bankShift int
	bankMask  uint64

	resetPending bool
	cycleMisses  int
	tagAccess    [][]uint64
	dataAccess   [][]uint64
	readCycles   []int
	writeCycles  int
	writingLine  *fill

	request   *cache.CacheRequest
	requestID int
	active    int

	inputs        sim.Buffer
	received      sim.Buffer
	uncompressed  sim.Buffer
	decompressing *fill
	decompCycles  int

	memState    mem.MemState
	memCycles   int
	memRead     bool
	readTicket  uint32
	lastSize    int
	freeTickets int
	nextTicket  uint32
	tickets     [mem.MaxMemoryTickets]*fill
	issued      [mem.MaxMemoryTickets]uint64

	filled    bool
	filledTag uint64

	next  *mem.Transaction
	stats Statistics
}

// NewCache creates a texture cache. It panics if the configuration is
// invalid.
func NewCache(name string, config Config, id int) *Cache {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("TextureCache %s: %v", name, err))
	}

	c := &Cache{
		name:   name,
		config: config,
		id:     id,
		lines: cache.NewFetchCache(name+".Lines", cache.Config{
			Ways:             config.Ways,
			Lines:            config.Lines,
			LineSize:         config.LineSize,
			RequestQueueSize: config.RequestQueueSize,
		}),
		lineShift:    bits.TrailingZeros(uint(config.LineSize)),
		bankShift:    bits.TrailingZeros(uint(config.BankWidth)),
		bankMask:     uint64(config.Banks - 1),
		tagAccess:    make([][]uint64, config.Banks),
		dataAccess:   make([][]uint64, config.Banks),
		readCycles:   make([]int, config.ReadPorts()),
		inputs:       sim.NewBuffer(name+".Inputs", config.InputRequests),
		received:     sim.NewBuffer(name+".Received", config.InputRequests),
		uncompressed: sim.NewBuffer(name+".Uncompressed", config.InputRequests),
		resetPending: true,
	}

	c.performReset()

	return c
}

// NewTextureCache creates the cache of a texture unit, numbered by ids.
func NewTextureCache(config Config, ids *ident.Factory) *Cache {
	id := ids.Next("TextureCache")
	return NewCache(fmt.Sprintf("TextureCache[%d]", id), config, id)
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// FetchCache returns the line store.
func (c *Cache) FetchCache() *cache.FetchCache {
	return c.lines
}

// Stats returns the activity counters.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// Idle reports whether no fill is outstanding.
func (c *Cache) Idle() bool {
	return c.request == nil &&
		c.active == 0 &&
		c.lines.PendingRequests() == 0 &&
		c.memCycles == 0
}

// LineFilled reports the line address filled in the last cycle, if any.
func (c *Cache) LineFilled() (uint64, bool) {
	return c.filledTag, c.filled
}

func (c *Cache) bank(addr uint64) int {
	return int((addr >> c.bankShift) & c.bankMask)
}

func contains(list []uint64, v uint64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Fetch reserves the line holding addr. The bool reports a miss. When the
// miss budget of the cycle is used up a miss fails with
// cache.ErrMissBudget, and when the tag bank is saturated the fetch fails
// with ErrBankConflict.
func (c *Cache) Fetch(addr uint64, source cache.TraceTag) (cache.Location, bool, error) {
	if addr == BlackTexelAddress {
		return blackTexel, false, nil
	}
	if addr&AddressSpaceMask != 0 {
		panic(fmt.Sprintf("TextureCache %s: unsupported texture address space %#x",
			c.name, addr&AddressSpaceMask))
	}

	bank := c.bank(addr)
	line := addr >> c.lineShift

	if !contains(c.tagAccess[bank], line) {
		if len(c.tagAccess[bank]) == c.config.MaxAccesses {
			c.stats.FetchBankConflicts++
			return cache.Location{}, false, ErrBankConflict
		}
		c.tagAccess[bank] = append(c.tagAccess[bank], line)
	}

	c.stats.Fetches++

	noNewMiss := c.cycleMisses == c.config.MissesPerCycle
	loc, miss, err := c.lines.FetchMissBudget(addr, noNewMiss, 1, source)
	if miss && err == nil {
		c.cycleMisses++
		c.stats.Misses++
	}

	return loc, miss, err
}

// Read copies size bytes at addr into buf through the read port of the data
// bank. A second read of a word already served in the cycle is bypassed and
// uses no port. A read that finds its port busy fails as a bank conflict.
func (c *Cache) Read(addr uint64, loc cache.Location, size int, buf []byte) bool {
	if addr == BlackTexelAddress {
		clear(buf[:size])
		return true
	}

	bank := c.bank(addr)
	word := addr >> 2

	if contains(c.dataAccess[bank], word) {
		if !c.lines.Read(addr, loc, size, buf) {
			return false
		}
		c.stats.Bypasses++
		return true
	}

	if len(c.dataAccess[bank]) == c.config.MaxAccesses {
		c.stats.ReadBankConflicts++
		return false
	}

	port := bank*c.config.MaxAccesses + len(c.dataAccess[bank])
	if c.readCycles[port] > 0 {
		c.stats.ReadBankConflicts++
		return false
	}

	if !c.lines.Read(addr, loc, size, buf) {
		return false
	}

	c.dataAccess[bank] = append(c.dataAccess[bank], word)
	c.readCycles[port] += ceilDiv(size, c.config.PortWidth)
	c.stats.Reads++

	return true
}

// Unreserve drops a reservation taken by Fetch.
func (c *Cache) Unreserve(loc cache.Location) {
	if loc == blackTexel {
		return
	}
	c.lines.Unreserve(loc)
}

// Reset discards every line on the next cycle.
func (c *Cache) Reset() {
	c.resetPending = true
}

// Update runs one cycle with the given memory controller state and returns
// the transaction issued in the cycle, if any.
func (c *Cache) Update(cycle uint64, state mem.MemState) *mem.Transaction {
	c.memState = state
	c.Clock(cycle)

	return c.next
}

// ProcessMemoryTransaction receives read data from the memory controller.
func (c *Cache) ProcessMemoryTransaction(t *mem.Transaction) {
	if t.Command != mem.ReadData {
		panic(fmt.Sprintf("TextureCache %s: unsupported transaction %v", c.name, t.Command))
	}
	if c.memCycles > 0 {
		panic(fmt.Sprintf("TextureCache %s: memory bus still busy", c.name))
	}

	f := c.tickets[t.Ticket%mem.MaxMemoryTickets]
	if f == nil {
		panic(fmt.Sprintf("TextureCache %s: unknown ticket %d", c.name, t.Ticket))
	}

	copy(f.buf[t.Address-f.address:], t.Data[:t.Size])

	c.readTicket = t.Ticket
	c.lastSize = t.Size
	c.memCycles = t.BusCycles()
	c.memRead = true
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
