package compression_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/compression"
)

// line builds 64 values spread over span starting at base.
func line(base, span uint32) []uint32 {
	values := make([]uint32, 64)
	for i := range values {
		values[i] = base + uint32(i*7)%span
	}
	return values
}

var _ = Describe("Hilo compression", func() {
	roundTrip := func(values []uint32) (compression.Level, []byte) {
		min, max := compression.BlockMinMax(values)
		level, payload := compression.Compress(values, min, max)

		out := make([]uint32, len(values))
		compression.Decompress(level, payload, out)
		Expect(out).To(Equal(values))

		return level, payload
	}

	It("should find the block range", func() {
		min, max := compression.BlockMinMax([]uint32{5, 3, 9, 7})
		Expect(min).To(Equal(uint32(3)))
		Expect(max).To(Equal(uint32(9)))
	})

	It("should find the depth range ignoring stencil bits", func() {
		minZ, maxZ, min, max := compression.BlockMinMaxZ([]uint32{0xff000010, 0x01000200, 0x00000100})
		Expect(minZ).To(Equal(uint32(0x10)))
		Expect(maxZ).To(Equal(uint32(0x200)))
		Expect(min).To(Equal(uint32(0x00000100)))
		Expect(max).To(Equal(uint32(0xff000010)))
	})

	It("should encode a constant block at the best level", func() {
		values := make([]uint32, 64)
		for i := range values {
			values[i] = 0x80402010
		}

		level, payload := roundTrip(values)
		Expect(level).To(Equal(compression.Best))
		Expect(payload).To(HaveLen(64))
		Expect(binary.LittleEndian.Uint32(payload[0:])).To(Equal(uint32(0x80402010)))
		Expect(binary.LittleEndian.Uint32(payload[4:])).To(Equal(uint32(0x80402010)))
	})

	It("should round trip blocks that fit the best level", func() {
		level, payload := roundTrip(line(0x12345600, 32))
		Expect(level).To(Equal(compression.Best))
		Expect(payload).To(HaveLen(64))
	})

	It("should round trip blocks using the A and B references", func() {
		values := line(0x00100000, 16)
		for i := 32; i < 64; i++ {
			values[i] = 0x00100040 + uint32(i%16)
		}

		level, _ := roundTrip(values)
		Expect(level).To(Equal(compression.Best))
	})

	It("should round trip blocks that only fit the normal level", func() {
		level, payload := roundTrip(line(0x40000000, 4000))
		Expect(level).To(Equal(compression.Normal))
		Expect(payload).To(HaveLen(128))
	})

	It("should leave wide blocks uncompressed", func() {
		values := make([]uint32, 64)
		for i := range values {
			values[i] = uint32(i) * 0x01010101 * 3
		}

		level, payload := roundTrip(values)
		Expect(level).To(Equal(compression.Uncompressed))
		Expect(payload).To(HaveLen(256))
	})

	It("should size payloads by level", func() {
		Expect(compression.PayloadSize(compression.Best, 64)).To(Equal(64))
		Expect(compression.PayloadSize(compression.Normal, 64)).To(Equal(128))
		Expect(compression.PayloadSize(compression.Uncompressed, 64)).To(Equal(256))
		Expect(compression.PayloadSize(compression.Best, 16)).To(Equal(22))
	})

	It("should panic on uninitialized memory", func() {
		payload := make([]byte, 64)
		binary.LittleEndian.PutUint32(payload, compression.Sentinel)

		Expect(func() {
			compression.Decompress(compression.Best, payload, make([]uint32, 64))
		}).To(Panic())
	})

	Describe("Compressors", func() {
		It("should round trip color lines", func() {
			c := compression.NewColorCompressor()
			values := line(0xff203040, 20)

			level, payload := c.Compress(values)
			out := make([]uint32, 64)
			c.Decompress(level, payload, out)
			Expect(out).To(Equal(values))
		})

		It("should keep stencil bits of depth lines", func() {
			d := compression.NewDepthCompressor()
			values := line(0x07000100, 24)

			level, payload := d.Compress(values)
			Expect(level).To(Equal(compression.Best))
			Expect(d.LastMinZ).To(Equal(uint32(0x000100)))

			out := make([]uint32, 64)
			d.Decompress(level, payload, out)
			Expect(out).To(Equal(values))
		})
	})
})
