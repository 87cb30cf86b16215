package texture

import (
	"github.com/sarchlab/gpucachesim/timing/mem"
)

// Clock advances the cache one cycle.
func (c *Cache) Clock(cycle uint64) {
	c.filled = false
	c.cycleMisses = 0
	for b := range c.tagAccess {
		c.tagAccess[b] = c.tagAccess[b][:0]
		c.dataAccess[b] = c.dataAccess[b][:0]
	}

	if c.resetPending {
		c.performReset()
		c.resetPending = false
	}

	c.countReadPorts()
	c.countWritePort()
	c.drainRequest()
	c.countMemoryBus(cycle)

	t := c.requestInput(cycle)
	c.decompress()
	c.writeInput()

	c.next = t
}

func (c *Cache) performReset() {
	c.lines.Reset()

	for i := range c.readCycles {
		c.readCycles[i] = 0
	}
	c.writeCycles = 0
	c.writingLine = nil

	c.request = nil
	c.active = 0

	c.inputs.Clear()
	c.received.Clear()
	c.uncompressed.Clear()
	c.decompressing = nil
	c.decompCycles = 0

	c.memCycles = 0
	c.memRead = false
	c.freeTickets = mem.MaxMemoryTickets
	c.tickets = [mem.MaxMemoryTickets]*fill{}

	c.next = nil
}

func (c *Cache) countReadPorts() {
	for i := range c.readCycles {
		if c.readCycles[i] > 0 {
			c.readCycles[i]--
		}
	}
}

// countWritePort completes the fill whose line is being written.
func (c *Cache) countWritePort() {
	if c.writeCycles == 0 {
		return
	}

	c.writeCycles--
	if c.writeCycles > 0 || c.writingLine == nil {
		return
	}

	f := c.writingLine
	c.lines.FreeRequest(f.reqID, false, true)
	c.active--
	c.writingLine = nil

	c.filled = true
	c.filledTag = f.address
	c.stats.LinesFilled++
}

func (c *Cache) drainRequest() {
	if c.request == nil {
		id, req, ok := c.lines.GetRequest()
		if !ok {
			return
		}
		c.requestID, c.request = id, req
	}

	if c.active >= c.config.InputRequests {
		return
	}

	req := c.request
	if req.Fill {
		c.inputs.Push(&fill{
			address: req.InAddress,
			size:    c.config.LineSize,
			reqID:   c.requestID,
			loc:     req.Loc,
			source:  req.Source,
			buf:     make([]byte, c.config.LineSize),
		})
		c.active++
	}

	c.request = nil
}

func (c *Cache) countMemoryBus(cycle uint64) {
	if c.memCycles == 0 {
		return
	}

	c.memCycles--
	if c.memCycles > 0 {
		return
	}

	slot := c.readTicket % mem.MaxMemoryTickets
	c.tickets[slot].received += c.lastSize
	c.tickets[slot] = nil
	c.memRead = false
	c.freeTickets++

	c.stats.MemoryRequests++
	c.stats.MemoryLatency += cycle - c.issued[slot]
}

// requestInput issues the next read of the oldest fill.
func (c *Cache) requestInput(cycle uint64) *mem.Transaction {
	head := c.inputs.Peek()
	if head == nil {
		return nil
	}

	f := head.(*fill)
	if c.memRead || c.freeTickets == 0 || !c.memState.CanRead() {
		return nil
	}

	size := min(mem.MaxTransactionSize, f.size-f.requested)
	ticket := c.nextTicket
	c.nextTicket++

	slot := ticket % mem.MaxMemoryTickets
	c.tickets[slot] = f
	c.issued[slot] = cycle

	t := mem.NewReadRequest(f.address+uint64(f.requested), size, mem.Texture, c.id, ticket)
	t.Cookie = f.source.ID

	f.requested += size
	c.freeTickets--
	c.stats.BytesRead += uint64(size)

	if f.requested == f.size {
		c.inputs.Pop()
		c.received.Push(f)
	}

	return t
}

// decompress passes fully received lines through the decompressor stage.
func (c *Cache) decompress() {
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

	f := head.(*fill)
	if f.received != f.size {
		return
	}

	c.received.Pop()
	c.decompressing = f
	c.decompCycles = c.config.DecompressLatency
}

// writeInput writes the oldest decompressed line into the cache. The line
// write uses every read port.
func (c *Cache) writeInput() {
	head := c.uncompressed.Peek()
	if head == nil || c.writeCycles > 0 {
		return
	}

	f := head.(*fill)
	if !c.lines.WriteLine(f.loc, f.buf) {
		return
	}

	c.uncompressed.Pop()
	c.writeCycles += ceilDiv(c.config.LineSize, c.config.PortWidth*c.config.ReadPorts())
	c.writingLine = f
}
