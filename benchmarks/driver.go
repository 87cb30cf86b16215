package benchmarks

import (
	"encoding/binary"

	"github.com/sarchlab/gpucachesim/timing/cache"
	"github.com/sarchlab/gpucachesim/timing/rop"
	"github.com/sarchlab/gpucachesim/timing/texture"
)

// driver issues the accesses of one workload stream, at most one step per
// cycle. A failed access is retried in the next step.
type driver interface {
	step()
	done() bool
	stalls() uint64
}

type stampPhase int

const (
	phaseClear stampPhase = iota
	phaseAcquire
	phaseRead
	phaseWrite
	phaseFlush
	phaseDone
)

// stampDriver draws stamps through a color or depth/stencil cache. Depth
// stamps are read before being written; color stamps are written blindly.
type stampDriver struct {
	cache  *rop.BlockCache
	depth  bool
	masked bool
	clear  bool
	order  []int
	passes int
	tag    cache.TraceTag

	phase   stampPhase
	next    int
	loc     cache.Location
	buf     []byte
	mask    []bool
	stalled uint64
}

func newStampDriver(
	c *rop.BlockCache,
	b Benchmark,
	order []int,
	depth bool,
) *stampDriver {
	d := &stampDriver{
		cache:  c,
		depth:  depth,
		masked: b.Masked && !depth,
		clear:  b.ClearFirst,
		order:  order,
		passes: max(b.Passes, 1),
		tag:    cache.TraceTag{ID: c.Name()},
		buf:    make([]byte, c.Config().BytesPerStamp),
		mask:   make([]bool, c.Config().BytesPerStamp),
		phase:  phaseAcquire,
	}

	if d.clear {
		d.phase = phaseClear
	}

	return d
}

func (d *stampDriver) total() int {
	return len(d.order) * d.passes
}

func (d *stampDriver) address() uint64 {
	stamp := d.order[d.next%len(d.order)]
	return d.cache.BufferAddress() + uint64(stamp*d.cache.Config().BytesPerStamp)
}

// value returns the fragment value written by the current visit.
func (d *stampDriver) value() uint32 {
	stamp := uint32(d.order[d.next%len(d.order)])
	pass := uint32(d.next / len(d.order))

	if d.depth {
		return rop.DepthStencil(0xffffff-stamp-pass, uint8(pass))
	}
	return 0xff000000 | (stamp&0xff)<<8 | pass
}

func (d *stampDriver) fill() {
	v := d.value()
	for w := 0; w+4 <= len(d.buf); w += 4 {
		binary.LittleEndian.PutUint32(d.buf[w:], v)
	}

	for b := range d.mask {
		d.mask[b] = ((b/4)+d.next)%2 == 0
	}
}

func (d *stampDriver) step() {
	switch d.phase {
	case phaseClear:
		d.stepClear()
	case phaseAcquire:
		d.stepAcquire()
	case phaseRead:
		if d.cache.Read(d.address(), d.loc, d.buf) {
			d.phase = phaseWrite
		} else {
			d.stalled++
		}
	case phaseWrite:
		d.stepWrite()
	case phaseFlush:
		if !d.cache.Flush() {
			d.phase = phaseDone
		}
	}
}

func (d *stampDriver) stepClear() {
	var busy bool
	if d.depth {
		busy = d.cache.ClearDepthStencil(0xffffff, 0)
	} else {
		busy = d.cache.Clear(0xff000000)
	}

	if !busy {
		d.phase = phaseAcquire
	}
}

func (d *stampDriver) stepAcquire() {
	if d.next == d.total() {
		d.phase = phaseFlush
		return
	}

	var ok bool
	if d.depth {
		d.loc, ok = d.cache.Fetch(d.address(), d.tag)
	} else {
		d.loc, ok = d.cache.Allocate(d.address(), d.tag)
	}

	if !ok {
		d.stalled++
		return
	}

	if d.depth {
		d.phase = phaseRead
	} else {
		d.phase = phaseWrite
	}
}

func (d *stampDriver) stepWrite() {
	d.fill()

	var ok bool
	if d.masked {
		ok = d.cache.WriteMasked(d.address(), d.loc, d.buf, d.mask)
	} else {
		ok = d.cache.Write(d.address(), d.loc, d.buf)
	}

	if !ok {
		d.stalled++
		return
	}

	d.next++
	d.phase = phaseAcquire
}

func (d *stampDriver) done() bool {
	return d.phase == phaseDone && d.cache.Idle()
}

func (d *stampDriver) stalls() uint64 {
	return d.stalled
}

// texelDriver fetches one texel per stamp visit from a texture laid out
// after the framebuffers.
type texelDriver struct {
	cache *texture.Cache
	base  uint64
	size  uint64
	total int
	tag   cache.TraceTag

	next     int
	fetched  bool
	loc      cache.Location
	buf      []byte
	stalled  uint64
	finished bool
}

func newTexelDriver(c *texture.Cache, base, size uint64, total int) *texelDriver {
	return &texelDriver{
		cache: c,
		base:  base,
		size:  size,
		total: total,
		tag:   cache.TraceTag{ID: c.Name()},
		buf:   make([]byte, 4),
	}
}

func (d *texelDriver) address() uint64 {
	return d.base + (uint64(d.next)*16)%d.size
}

func (d *texelDriver) step() {
	if d.next == d.total {
		d.finished = true
		return
	}

	if !d.fetched {
		loc, _, err := d.cache.Fetch(d.address(), d.tag)
		if err != nil {
			d.stalled++
			return
		}
		d.loc = loc
		d.fetched = true
	}

	if !d.cache.Read(d.address(), d.loc, len(d.buf), d.buf) {
		d.stalled++
		return
	}

	d.cache.Unreserve(d.loc)
	d.fetched = false
	d.next++
}

func (d *texelDriver) done() bool {
	return d.finished && d.cache.Idle()
}

func (d *texelDriver) stalls() uint64 {
	return d.stalled
}
