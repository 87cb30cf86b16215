package mem

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// sentinelUnit is the granularity at which untouched memory is seeded with
// the sentinel pattern.
const sentinelUnit = 4096

// ControllerConfig holds memory controller parameters.
type ControllerConfig struct {
	// Latency is the number of cycles between a read request and the first
	// cycle its data can be returned.
	Latency int `json:"latency"`
	// QueueSize bounds the read requests in flight across all ports.
	QueueSize int `json:"queue_size"`
	// Capacity is the size of the simulated memory in bytes.
	Capacity uint64 `json:"capacity"`
}

// DefaultControllerConfig returns the default controller parameters.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Latency:   20,
		QueueSize: 64,
		Capacity:  64 * mem.MB,
	}
}

// Validate checks the configuration.
func (c ControllerConfig) Validate() error {
	if c.Latency < 0 {
		return fmt.Errorf("latency must not be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.Capacity == 0 || c.Capacity%sentinelUnit != 0 {
		return fmt.Errorf("capacity must be a positive multiple of %d", sentinelUnit)
	}
	return nil
}

// ControllerStats counts the traffic handled by a controller.
type ControllerStats struct {
	ReadRequests  uint64
	ReadBytes     uint64
	Writes        uint64
	WriteBytes    uint64
	StalledCycles uint64
}

type pendingRead struct {
	req   *Transaction
	port  int
	ready uint64
}

type attachedPort struct {
	port Port
	// busy counts the cycles left on the response bus of the port
	busy int
}

// Controller is a fixed-latency memory controller. Attached units are polled
// once per cycle for a new transaction. Reads complete after Latency cycles
// and are returned one at a time per port, each holding the port bus for the
// cycles needed to move its data. Memory that was never written reads as
// the 0xDEADCAFE pattern.
type Controller struct {
	name    string
	config  ControllerConfig
	storage *mem.Storage
	seeded  map[uint64]bool

	ports   []*attachedPort
	pending []pendingRead

	tracer Tracer
	stats  ControllerStats
}

// NewController creates a memory controller. It panics if the configuration
// is invalid.
func NewController(name string, config ControllerConfig) *Controller {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("Controller %s: %v", name, err))
	}

	return &Controller{
		name:    name,
		config:  config,
		storage: mem.NewStorage(config.Capacity),
		seeded:  make(map[uint64]bool),
	}
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// Stats returns the traffic counters.
func (c *Controller) Stats() ControllerStats {
	return c.stats
}

// SetTracer installs a transaction tracer. A nil tracer disables tracing.
func (c *Controller) SetTracer(t Tracer) {
	c.tracer = t
}

// Attach connects a unit to the controller.
func (c *Controller) Attach(p Port) {
	c.ports = append(c.ports, &attachedPort{port: p})
}

// InFlight returns the number of read requests not yet answered.
func (c *Controller) InFlight() int {
	return len(c.pending)
}

// Clock advances the controller one cycle: responses whose latency has
// elapsed are delivered, then each attached unit is updated and may issue a
// new transaction.
func (c *Controller) Clock(cycle uint64) {
	c.deliver(cycle)

	state := c.state()
	if state == 0 {
		c.stats.StalledCycles++
	}

	for i, ap := range c.ports {
		t := ap.port.Update(cycle, state)
		if t == nil {
			continue
		}

		c.accept(cycle, i, t)

		// The queue may have filled up for the remaining ports.
		state = c.state()
	}
}

func (c *Controller) state() MemState {
	if len(c.pending) >= c.config.QueueSize {
		return 0
	}
	return ReadAccept | WriteAccept
}

func (c *Controller) deliver(cycle uint64) {
	for _, ap := range c.ports {
		if ap.busy > 0 {
			ap.busy--
		}
	}

	for i := 0; i < len(c.pending); {
		p := c.pending[i]
		ap := c.ports[p.port]

		if p.ready > cycle || ap.busy > 0 {
			i++
			continue
		}

		data := c.read(p.req.Address, p.req.Size)
		resp := NewReadData(p.req, data)
		c.trace(cycle, resp)

		ap.busy = resp.BusCycles()
		ap.port.ProcessMemoryTransaction(resp)

		c.pending = append(c.pending[:i], c.pending[i+1:]...)
	}
}

func (c *Controller) accept(cycle uint64, port int, t *Transaction) {
	c.trace(cycle, t)

	switch t.Command {
	case ReadReq:
		c.stats.ReadRequests++
		c.stats.ReadBytes += uint64(t.Size)
		c.pending = append(c.pending, pendingRead{
			req:   t,
			port:  port,
			ready: cycle + uint64(c.config.Latency),
		})
	case Write:
		c.stats.Writes++
		c.stats.WriteBytes += uint64(t.Size)
		c.write(t.Address, t.Data)
		c.holdBus(port, t)
	case MaskedWrite:
		c.stats.Writes++
		c.stats.WriteBytes += uint64(t.Size)
		c.writeMasked(t.Address, t.Data, t.Mask)
		c.holdBus(port, t)
	default:
		panic(fmt.Sprintf("Controller %s: unexpected %v from a unit", c.name, t.Command))
	}
}

// holdBus keeps responses off a port while the unit sends write data. The
// transfer starts in the cycle after the write was issued.
func (c *Controller) holdBus(port int, t *Transaction) {
	c.ports[port].busy = t.BusCycles() + 1
}

func (c *Controller) trace(cycle uint64, t *Transaction) {
	if c.tracer != nil {
		c.tracer.Trace(cycle, t)
	}
}

// Read returns the contents of memory without simulating any timing.
func (c *Controller) Read(addr uint64, size int) []byte {
	return c.read(addr, size)
}

// Write updates memory without simulating any timing.
func (c *Controller) Write(addr uint64, data []byte) {
	c.write(addr, data)
}

func (c *Controller) read(addr uint64, size int) []byte {
	c.seed(addr, size)

	data, err := c.storage.Read(addr, uint64(size))
	if err != nil {
		panic(fmt.Sprintf("Controller %s: %v", c.name, err))
	}

	return data
}

func (c *Controller) write(addr uint64, data []byte) {
	c.seed(addr, len(data))

	if err := c.storage.Write(addr, data); err != nil {
		panic(fmt.Sprintf("Controller %s: %v", c.name, err))
	}
}

func (c *Controller) writeMasked(addr uint64, data []byte, mask []uint32) {
	merged := c.read(addr, len(data))

	for b := range data {
		if mask[b/4]&(0xff<<(8*(b%4))) != 0 {
			merged[b] = data[b]
		}
	}

	c.write(addr, merged)
}

// seed fills every storage unit overlapping the range with the sentinel
// pattern the first time it is touched.
func (c *Controller) seed(addr uint64, size int) {
	if addr+uint64(size) > c.config.Capacity {
		panic(fmt.Sprintf("Controller %s: access %#x+%d beyond capacity",
			c.name, addr, size))
	}

	first := addr / sentinelUnit
	last := (addr + uint64(size) - 1) / sentinelUnit

	for unit := first; unit <= last; unit++ {
		if c.seeded[unit] {
			continue
		}

		pattern := make([]byte, sentinelUnit)
		for w := 0; w < sentinelUnit; w += 4 {
			binary.LittleEndian.PutUint32(pattern[w:], Sentinel)
		}

		if err := c.storage.Write(unit*sentinelUnit, pattern); err != nil {
			panic(fmt.Sprintf("Controller %s: %v", c.name, err))
		}
		c.seeded[unit] = true
	}
}

// Sentinel is the pattern read from memory that was never written.
const Sentinel uint32 = 0xDEADCAFE
