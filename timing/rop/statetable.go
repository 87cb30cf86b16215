package rop

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/gpucachesim/timing/mem"
)

// Block states are stored in memory as 4-bit codes, eight per little-endian
// 32-bit word. The upper two bits hold the kind of state and the lower two
// bits the compression level.
const (
	codeClear        = 0x0
	codeUncompressed = 0x4
	codeNormal       = 0x8 | 0x1
	codeBest         = 0x8 | 0x2
)

func (s BlockState) code() uint32 {
	switch s {
	case Clear:
		return codeClear
	case Uncompressed:
		return codeUncompressed
	case CompressedNormal:
		return codeNormal
	case CompressedBest:
		return codeBest
	}
	panic(fmt.Sprintf("rop: block state %v has no encoding", s))
}

func stateOfCode(code uint32) (BlockState, bool) {
	switch code {
	case codeClear:
		return Clear, true
	case codeUncompressed:
		return Uncompressed, true
	case codeNormal:
		return CompressedNormal, true
	case codeBest:
		return CompressedBest, true
	}
	return Clear, false
}

// stateTableSize returns the bytes taken by the encoded state of blocks
// blocks, padded to whole words.
func stateTableSize(blocks int) int {
	return ceilDiv(blocks, 8) * 4
}

// EncodeBlockStates packs a block state table.
func EncodeBlockStates(states []BlockState) []byte {
	buf := make([]byte, stateTableSize(len(states)))

	for w := 0; w < len(buf)/4; w++ {
		var word uint32
		for k := 0; k < 8 && w*8+k < len(states); k++ {
			word |= states[w*8+k].code() << (4 * k)
		}
		binary.LittleEndian.PutUint32(buf[4*w:], word)
	}

	return buf
}

// DecodeBlockStates unpacks len(states) block states from buf.
func DecodeBlockStates(buf []byte, states []BlockState) error {
	if len(buf) < stateTableSize(len(states)) {
		return fmt.Errorf("rop: %d bytes cannot hold %d block states", len(buf), len(states))
	}

	for i := range states {
		word := binary.LittleEndian.Uint32(buf[4*(i/8):])
		code := (word >> (4 * (i % 8))) & 0xf

		s, ok := stateOfCode(code)
		if !ok {
			return fmt.Errorf("rop: block %d has invalid state code %#x", i, code)
		}
		states[i] = s
	}

	return nil
}

// SetStateAddress sets where SaveState and RestoreState keep the block
// state table. Every cache owns a slice of the area selected by its id,
// padded to the largest memory transaction. The address survives resets.
func (c *BlockCache) SetStateAddress(addr uint64) {
	c.stateAddress = addr
}

// StateAddress returns the address of the block state table of this cache.
func (c *BlockCache) StateAddress() uint64 {
	size := stateTableSize(c.config.MaxBlocks)
	stride := ceilDiv(size, mem.MaxTransactionSize) * mem.MaxTransactionSize

	return c.stateAddress + uint64(c.id*stride)
}

// SaveState writes the block state table to memory. It is polled like
// Flush: the first call starts the save and the first call after the last
// write has left the cache returns false. Lines should be flushed first, as
// their blocks change state when they are written back.
func (c *BlockCache) SaveState() bool {
	if !c.saveRequest {
		c.saveRequest = true
		c.saving = true
	} else if !c.saving {
		c.saveRequest = false
	}

	return c.saving
}

// RestoreState reads the block state table back from memory. It is polled
// like Flush. The cache should hold no line of the buffer while restoring.
func (c *BlockCache) RestoreState() bool {
	if !c.restoreRequest {
		c.restoreRequest = true
		c.restoring = true
	} else if !c.restoring {
		c.restoreRequest = false
	}

	return c.restoring
}

// ResetState marks every block as uncompressed, BlocksPerCycle blocks per
// cycle. It is polled like Flush.
func (c *BlockCache) ResetState() bool {
	if !c.resetStateRequest {
		c.resetStateRequest = true
		c.resettingState = true
		c.resetStateCycles = ceilDiv(c.config.MaxBlocks, c.config.BlocksPerCycle)
	} else if !c.resettingState {
		c.resetStateRequest = false
	}

	return c.resettingState
}

// transferState moves the next part of the block state table when a save
// or restore is in progress. It shares the memory bus and the tickets with
// the line transfers.
func (c *BlockCache) transferState() *mem.Transaction {
	switch {
	case c.saving:
		return c.saveState()
	case c.restoring:
		return c.restoreState()
	}

	return nil
}

func (c *BlockCache) saveState() *mem.Transaction {
	if c.stateOut == nil {
		c.stateOut = EncodeBlockStates(c.states)
		c.savedBytes = 0
	}

	if c.savedBytes == len(c.stateOut) {
		if !c.memWrite {
			c.stateOut = nil
			c.saving = false
		}
		return nil
	}

	if !c.busFree() || !c.memState.CanWrite() {
		return nil
	}

	size := min(mem.MaxTransactionSize, len(c.stateOut)-c.savedBytes)
	data := c.stateOut[c.savedBytes : c.savedBytes+size]
	ticket := c.nextTicket
	c.nextTicket++

	t := mem.NewWrite(c.StateAddress()+uint64(c.savedBytes), data, c.unit, c.id, ticket)

	c.savedBytes += size
	c.freeTickets--
	c.memWrite = true
	c.stateWrite = true
	c.memCycles = t.BusCycles()
	c.stats.WriteTransactions++
	c.stats.StateTransactions++
	c.stats.BytesWritten += uint64(size)

	return t
}

func (c *BlockCache) restoreState() *mem.Transaction {
	if c.stateIn == nil {
		size := stateTableSize(c.config.MaxBlocks)
		c.stateIn = &readEntry{
			address: c.StateAddress(),
			size:    size,
			buf:     make([]byte, size),
		}
	}

	e := c.stateIn
	if e.received == e.size {
		if err := DecodeBlockStates(e.buf, c.states); err != nil {
			panic(fmt.Sprintf("BlockCache %s: restoring state from %#x: %v",
				c.name, e.address, err))
		}
		c.stateIn = nil
		c.restoring = false

		return nil
	}

	if e.requested == e.size {
		return nil
	}

	t := c.requestBlock(e)
	if t != nil {
		c.stats.StateTransactions++
	}

	return t
}

func (c *BlockCache) resetStateStep() {
	if !c.resettingState {
		return
	}

	if c.resetStateCycles > 0 {
		c.resetStateCycles--
	}
	if c.resetStateCycles > 0 {
		return
	}

	for i := range c.states {
		c.states[i] = Uncompressed
	}
	c.resettingState = false
}
