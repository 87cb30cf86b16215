// Package compression implements the hi/lo block compression used by the
// color and depth caches.
//
// A block of 32-bit values is encoded against four reference values: the
// block minimum and maximum, and A = min + 2^loShift and B = max - 2^loShift.
// A value is compressible at a level when its high bits equal the high bits
// of one of the references. The encoded block is an 8-byte header (min and
// max, little endian) followed by an MSB-first bit stream holding, per
// value, a 2-bit reference selector and the loShift low bits.
package compression

import (
	"encoding/binary"
	"fmt"
)

// Level is the compression level chosen for a block.
type Level int

// Compression levels, from no compression to the densest encoding.
const (
	Uncompressed Level = iota
	Normal
	Best
)

func (l Level) String() string {
	switch l {
	case Uncompressed:
		return "uncompressed"
	case Normal:
		return "normal"
	case Best:
		return "best"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Reference selectors stored with every compressed value.
const (
	RefMin = 0
	RefMax = 1
	RefA   = 2
	RefB   = 3
)

// Sentinel is the pattern stored in memory that was never written.
const Sentinel uint32 = 0xDEADCAFE

// headerSize is the size of the min/max header of a compressed block.
const headerSize = 8

// Params describes the bit layout of one compression level.
type Params struct {
	HiMask    uint32
	LoShift   uint
	LoMask    uint32
	BlockSize int
}

var (
	// NormalParams keeps 13 low bits per value in a 128-byte block.
	NormalParams = Params{HiMask: 0xffffe000, LoShift: 13, LoMask: 0x00001fff, BlockSize: 128}
	// BestParams keeps 5 low bits per value in a 64-byte block.
	BestParams = Params{HiMask: 0xffffffe0, LoShift: 5, LoMask: 0x0000001f, BlockSize: 64}
)

// ParamsFor returns the bit layout of a compressed level.
func ParamsFor(level Level) Params {
	switch level {
	case Normal:
		return NormalParams
	case Best:
		return BestParams
	}
	panic(fmt.Sprintf("compression: no parameters for level %v", level))
}

// PayloadSize returns the encoded size in bytes of a block of n values.
func PayloadSize(level Level, n int) int {
	if level == Uncompressed {
		return 4 * n
	}
	p := ParamsFor(level)
	bits := n * int(p.LoShift+2)
	return headerSize + (bits+7)/8
}

// BlockMinMax returns the minimum and maximum of a block.
func BlockMinMax(values []uint32) (min, max uint32) {
	min = 0xffffffff
	max = 0x00000000

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return min, max
}

// BlockMinMaxZ returns the range of the 24-bit depth part of a block of
// depth/stencil values and the range of the full values.
func BlockMinMaxZ(values []uint32) (minZ, maxZ, min, max uint32) {
	minZ = 0x00ffffff
	maxZ = 0x00000000

	for _, v := range values {
		z := v & 0x00ffffff
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
	}

	min, max = BlockMinMax(values)

	return minZ, maxZ, min, max
}

// references returns A and B for a level.
func references(p Params, min, max uint32) (a, b uint32) {
	return min + (1 << p.LoShift), max - (1 << p.LoShift)
}

// selectReference finds the reference whose high bits match the value.
func selectReference(p Params, a, b, min, max, value uint32) (int, bool) {
	hi := value & p.HiMask

	switch {
	case a&p.HiMask == hi:
		return RefA, true
	case b&p.HiMask == hi:
		return RefB, true
	case min&p.HiMask == hi:
		return RefMin, true
	case max&p.HiMask == hi:
		return RefMax, true
	}

	return 0, false
}

// Compress encodes a block given its minimum and maximum. It picks Best
// when every value fits it, then Normal, and otherwise returns the raw
// little-endian values.
func Compress(values []uint32, min, max uint32) (Level, []byte) {
	for _, level := range []Level{Best, Normal} {
		if out, ok := encode(ParamsFor(level), values, min, max); ok {
			return level, out
		}
	}

	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}

	return Uncompressed, out
}

func encode(p Params, values []uint32, min, max uint32) ([]byte, bool) {
	a, b := references(p, min, max)

	out := make([]byte, PayloadSize(levelOf(p), len(values)))
	binary.LittleEndian.PutUint32(out[0:], min)
	binary.LittleEndian.PutUint32(out[4:], max)

	w := bitWriter{buf: out[headerSize:]}
	width := p.LoShift + 2

	for _, v := range values {
		ref, ok := selectReference(p, a, b, min, max, v)
		if !ok {
			return nil, false
		}
		w.write(uint32(ref)<<p.LoShift|v&p.LoMask, width)
	}

	return out, true
}

func levelOf(p Params) Level {
	if p == BestParams {
		return Best
	}
	return Normal
}

// Decompress expands an encoded block into out. It panics when a compressed
// payload starts with the uninitialized memory pattern.
func Decompress(level Level, payload []byte, out []uint32) {
	if level == Uncompressed {
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(payload[4*i:])
		}
		return
	}

	min := binary.LittleEndian.Uint32(payload[0:])
	max := binary.LittleEndian.Uint32(payload[4:])
	if min == Sentinel {
		panic("compression: decompressing uninitialized memory")
	}

	p := ParamsFor(level)
	a, b := references(p, min, max)

	var ref [4]uint32
	ref[RefMin] = min & p.HiMask
	ref[RefMax] = max & p.HiMask
	ref[RefA] = a & p.HiMask
	ref[RefB] = b & p.HiMask

	r := bitReader{buf: payload[headerSize:]}
	width := p.LoShift + 2

	for i := range out {
		code := r.read(width)
		out[i] = ref[code>>p.LoShift] | code&p.LoMask
	}
}

type bitWriter struct {
	buf []byte
	pos uint
}

func (w *bitWriter) write(code uint32, width uint) {
	for bit := int(width) - 1; bit >= 0; bit-- {
		if code&(1<<uint(bit)) != 0 {
			w.buf[w.pos/8] |= 0x80 >> (w.pos % 8)
		}
		w.pos++
	}
}

type bitReader struct {
	buf []byte
	pos uint
}

func (r *bitReader) read(width uint) uint32 {
	var code uint32
	for i := uint(0); i < width; i++ {
		code <<= 1
		if r.buf[r.pos/8]&(0x80>>(r.pos%8)) != 0 {
			code |= 1
		}
		r.pos++
	}
	return code
}
