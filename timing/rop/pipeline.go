package rop

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/gpucachesim/timing/compression"
	"github.com/sarchlab/gpucachesim/timing/mem"
)

// Clock advances the cache one cycle.
func (c *BlockCache) Clock(cycle uint64) {
	if c.flushing {
		c.flushing = !c.lines.Flush()
	}

	if c.resetPending {
		c.performReset()
		c.resetPending = false
		if c.mode == Resetting {
			c.mode = Normal
		}
	}

	c.fetched = false

	c.countReadPorts()
	c.countWritePorts()
	c.drainRequest()
	c.countMemoryBus()

	var t *mem.Transaction

	t = c.requestInput()
	c.readOutput()
	c.decompress()
	c.compressOutput()

	if t == nil {
		t = c.writeOutput()
	}

	c.writeInput()

	if t == nil {
		t = c.transferState()
	}
	c.resetStateStep()

	c.next = t
}

func (c *BlockCache) performReset() {
	c.lines.Reset()

	for i := range c.states {
		c.states[i] = Clear
	}

	if !c.keepRegs {
		c.base = DefaultBufferAddress
		c.bytesPerPixel = 4
		c.clearPixel = append(c.clearPixel[:0], 0)
	}
	c.keepRegs = false

	for i := range c.readCycles {
		c.readCycles[i] = 0
	}
	for i := range c.writeCycles {
		c.writeCycles[i] = 0
	}

	c.readingLine = nil
	c.writingLine = nil
	c.request = nil
	c.reads = nil
	c.writes = nil

	c.inputs.Clear()
	c.received.Clear()
	c.uncompressed.Clear()
	c.outputs.Clear()
	c.toCompress.Clear()
	c.compressed.Clear()

	c.decompressing = nil
	c.decompCycles = 0
	c.compressing = nil
	c.compCycles = 0

	c.memCycles = 0
	c.memRead = false
	c.memWrite = false
	c.freeTickets = mem.MaxMemoryTickets
	c.tickets = [mem.MaxMemoryTickets]*readEntry{}

	c.flushing = false
	c.flushRequest = false

	c.saving = false
	c.saveRequest = false
	c.stateOut = nil
	c.savedBytes = 0
	c.stateWrite = false
	c.restoring = false
	c.restoreRequest = false
	c.stateIn = nil
	c.resettingState = false
	c.resetStateRequest = false
	c.resetStateCycles = 0

	c.next = nil
}

// clearWord returns the clear value of word w of a line.
func (c *BlockCache) clearWord(w int) uint32 {
	return c.clearPixel[w%len(c.clearPixel)]
}

// countReadPorts finishes stamp and line reads. A finished line read hands
// the spill to the compressor.
func (c *BlockCache) countReadPorts() {
	for i := range c.readCycles {
		if c.readCycles[i] == 0 {
			continue
		}

		c.readCycles[i]--
		if c.readCycles[i] == 0 && c.readingLine != nil && c.readLinePort == i {
			c.toCompress.Push(c.readingLine)
			c.readingLine = nil
		}
	}
}

// countWritePorts finishes stamp and line writes. A finished line write
// completes the fill.
func (c *BlockCache) countWritePorts() {
	for i := range c.writeCycles {
		if c.writeCycles[i] == 0 {
			continue
		}

		c.writeCycles[i]--
		if c.writeCycles[i] == 0 && c.writingLine != nil && c.writeLinePort == i {
			e := c.writingLine
			c.lines.FreeRequest(e.reqID, false, true)
			c.removeRead(e)
			c.writingLine = nil
		}
	}
}

func (c *BlockCache) removeRead(e *readEntry) {
	for i, r := range c.reads {
		if r == e {
			c.reads = append(c.reads[:i], c.reads[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("BlockCache %s: fill for %#x is not active", c.name, e.address))
}

func (c *BlockCache) removeWrite(e *writeEntry) {
	for i, w := range c.writes {
		if w == e {
			c.writes = append(c.writes[:i], c.writes[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("BlockCache %s: spill for %#x is not active", c.name, e.address))
}

// drainRequest turns the next line replacement of the line store into a
// spill and/or a fill. A fill waits while a spill of the same address is
// still queued for memory.
func (c *BlockCache) drainRequest() {
	if c.request == nil {
		id, req, ok := c.lines.GetRequest()
		if !ok {
			return
		}
		c.requestID, c.request = id, req
	}

	if len(c.writes) >= c.config.OutputRequests ||
		len(c.reads) >= c.config.InputRequests {
		return
	}

	req := c.request

	if req.Fill {
		for _, w := range c.writes {
			if w.address == req.InAddress {
				c.stats.HazardStalls++
				return
			}
		}
	}

	var spill *writeEntry

	if req.Spill {
		for _, r := range c.reads {
			if r.address == req.OutAddress {
				panic(fmt.Sprintf("BlockCache %s: spilling %#x while it is still being filled",
					c.name, req.OutAddress))
			}
		}

		spill = &writeEntry{
			address: req.OutAddress,
			block:   c.AddressToBlock(req.OutAddress),
			reqID:   c.requestID,
			loc:     req.Loc,
			masked:  req.Masked,
			source:  req.Source,
			data:    make([]byte, c.lineSize),
			mask:    make([]uint32, c.lineSize/4),
		}
		c.writes = append(c.writes, spill)
		c.outputs.Push(spill)
		c.stats.Spills++
	}

	if req.Fill {
		fill := &readEntry{
			address:   req.InAddress,
			block:     c.AddressToBlock(req.InAddress),
			reqID:     c.requestID,
			loc:       req.Loc,
			source:    req.Source,
			writeWait: req.Spill,
			spillWait: req.Spill && req.InAddress == req.OutAddress,
			buf:       make([]byte, c.lineSize),
		}
		c.reads = append(c.reads, fill)
		c.inputs.Push(fill)
		c.stats.Fills++

		if spill != nil {
			spill.fill = fill
		}
	}

	c.request = nil
}

// countMemoryBus finishes the transfer on the memory bus and returns its
// ticket.
func (c *BlockCache) countMemoryBus() {
	if c.memCycles == 0 {
		return
	}

	c.memCycles--
	if c.memCycles > 0 {
		return
	}

	if c.memRead {
		e := c.tickets[c.readTicket%mem.MaxMemoryTickets]
		e.received += c.lastSize
		c.tickets[c.readTicket%mem.MaxMemoryTickets] = nil
		c.memRead = false
	}

	if c.memWrite && c.stateWrite {
		c.stateWrite = false
	} else if c.memWrite {
		e := c.compressed.Peek().(*writeEntry)
		if e.written == e.size {
			c.compressed.Pop()
			c.lines.FreeRequest(e.reqID, true, false)
			if e.fill != nil {
				e.fill.spillWait = false
			}
			c.removeWrite(e)
		}
	}
	c.memWrite = false

	c.freeTickets++
}

// requestInput issues the next read of the oldest fill. Blocks in the Clear
// state need no memory traffic.
func (c *BlockCache) requestInput() *mem.Transaction {
	head := c.inputs.Peek()
	if head == nil {
		return nil
	}

	e := head.(*readEntry)
	if e.spillWait {
		return nil
	}

	if e.size == 0 {
		e.state = c.states[e.block]
		if e.state == Clear {
			e.size = c.lineSize
			e.received = c.lineSize
			c.inputs.Pop()
			c.received.Push(e)
			c.stats.ClearFills++

			return nil
		}

		e.size = compression.PayloadSize(e.state.level(), c.lineSize/4)
	}

	t := c.requestBlock(e)
	if e.requested == e.size {
		c.inputs.Pop()
		c.received.Push(e)
	}

	return t
}

func (c *BlockCache) busFree() bool {
	return !c.memRead && !c.memWrite && c.freeTickets > 0
}

func (c *BlockCache) requestBlock(e *readEntry) *mem.Transaction {
	if !c.busFree() || !c.memState.CanRead() {
		return nil
	}

	size := min(mem.MaxTransactionSize, e.size-e.requested)
	ticket := c.nextTicket
	c.nextTicket++

	c.tickets[ticket%mem.MaxMemoryTickets] = e

	t := mem.NewReadRequest(e.address+uint64(e.requested), size, c.unit, c.id, ticket)
	t.Cookie = e.source.ID

	e.requested += size
	c.freeTickets--
	c.stats.ReadTransactions++
	c.stats.BytesRead += uint64(size)

	return t
}

// readOutput reads the line of the oldest spill out of the cache.
func (c *BlockCache) readOutput() {
	head := c.outputs.Peek()
	if head == nil || c.readingLine != nil {
		return
	}

	port := freePort(c.readCycles)
	if port < 0 {
		return
	}

	e := head.(*writeEntry)
	if !c.lines.ReadLine(e.loc, e.data) {
		return
	}
	if e.masked {
		c.lines.ReadMask(e.loc, e.mask)
	}

	c.readCycles[port] += ceilDiv(c.lineSize, c.config.PortWidth)
	c.readLinePort = port
	c.readingLine = e

	if e.fill != nil {
		e.fill.writeWait = false
	}

	c.outputs.Pop()
}

// decompress expands the oldest fully received fill.
func (c *BlockCache) decompress() {
	if c.decompCycles > 0 {
		c.decompCycles--
		if c.decompCycles == 0 {
			c.uncompressed.Push(c.decompressing)
			c.decompressing = nil
		}
	}

	if c.decompCycles > 0 {
		return
	}

	head := c.received.Peek()
	if head == nil {
		return
	}

	e := head.(*readEntry)
	if e.received != e.size {
		return
	}

	switch e.state {
	case Clear:
		for w := 0; w < c.lineSize/4; w++ {
			binary.LittleEndian.PutUint32(e.buf[4*w:], c.clearWord(w))
		}
	case Uncompressed:
	case CompressedNormal, CompressedBest:
		values := make([]uint32, c.lineSize/4)
		c.compressor.Decompress(e.state.level(), e.buf[:e.size], values)
		for i, v := range values {
			binary.LittleEndian.PutUint32(e.buf[4*i:], v)
		}
	default:
		panic(fmt.Sprintf("BlockCache %s: unsupported block state %v", c.name, e.state))
	}

	c.received.Pop()
	c.decompressing = e
	c.decompCycles = c.config.DecompressLatency
}

// compressOutput compresses the oldest line read out for a spill and sets
// the new state of its block.
func (c *BlockCache) compressOutput() {
	if c.compCycles > 0 {
		c.compCycles--
		if c.compCycles == 0 {
			c.compressed.Push(c.compressing)
			c.compressing = nil
		}
	}

	if c.compCycles > 0 {
		return
	}

	head := c.toCompress.Pop()
	if head == nil {
		return
	}

	e := head.(*writeEntry)
	state := c.states[e.block]

	// Bytes never written to a cleared block hold the clear value.
	if state == Clear && e.masked {
		for w := range e.mask {
			word := binary.LittleEndian.Uint32(e.data[4*w:])
			word = word&e.mask[w] | c.clearWord(w)&^e.mask[w]
			binary.LittleEndian.PutUint32(e.data[4*w:], word)
			e.mask[w] = 0xffffffff
		}
	}

	level := compression.Uncompressed
	if c.compress && state != Uncompressed {
		values := make([]uint32, c.lineSize/4)
		for i := range values {
			values[i] = binary.LittleEndian.Uint32(e.data[4*i:])
		}

		var payload []byte
		level, payload = c.compressor.Compress(values)
		if level != compression.Uncompressed {
			e.data = payload
			e.masked = false
		}
	}

	c.states[e.block] = stateOf(level)
	e.size = compression.PayloadSize(level, c.lineSize/4)

	switch level {
	case compression.Uncompressed:
		c.stats.BlocksUncompressed++
	case compression.Normal:
		c.stats.BlocksNormal++
	case compression.Best:
		c.stats.BlocksBest++
	}

	c.compressing = e
	c.compCycles = c.config.CompressLatency
}

// writeOutput issues the next write of the oldest compressed spill.
func (c *BlockCache) writeOutput() *mem.Transaction {
	head := c.compressed.Peek()
	if head == nil {
		return nil
	}

	e := head.(*writeEntry)
	if e.written == e.size || !c.busFree() || !c.memState.CanWrite() {
		return nil
	}

	size := min(mem.MaxTransactionSize, e.size-e.written)
	data := e.data[e.written : e.written+size]
	ticket := c.nextTicket
	c.nextTicket++

	var t *mem.Transaction
	if e.masked {
		mask := e.mask[e.written/4 : (e.written+size+3)/4]
		t = mem.NewMaskedWrite(e.address+uint64(e.written), data, mask, c.unit, c.id, ticket)
	} else {
		t = mem.NewWrite(e.address+uint64(e.written), data, c.unit, c.id, ticket)
	}
	t.Cookie = e.source.ID

	e.written += size
	c.freeTickets--
	c.memWrite = true
	c.memCycles = t.BusCycles()
	c.stats.WriteTransactions++
	c.stats.BytesWritten += uint64(size)

	return t
}

// writeInput writes the oldest decompressed fill into its line once the
// old contents have been read out.
func (c *BlockCache) writeInput() {
	head := c.uncompressed.Peek()
	if head == nil || c.writingLine != nil {
		return
	}

	e := head.(*readEntry)
	if e.writeWait {
		return
	}

	port := freePort(c.writeCycles)
	if port < 0 {
		return
	}

	if !c.lines.WriteLine(e.loc, e.buf) {
		return
	}

	c.uncompressed.Pop()
	c.writeCycles[port] += ceilDiv(c.lineSize, c.config.PortWidth)
	c.writeLinePort = port
	c.writingLine = e
}
