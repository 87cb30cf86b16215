package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/cache"
)

func pattern(size int, seed byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	return buf
}

func allTrue(size int) []bool {
	mask := make([]bool, size)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

var _ = Describe("FetchCache", func() {
	var (
		c   *cache.FetchCache
		src cache.TraceTag
	)

	// fill completes the fill half of the oldest request with data.
	fill := func(data []byte) {
		id, req, ok := c.GetRequest()
		Expect(ok).To(BeTrue())
		Expect(req.Fill).To(BeTrue())
		Expect(c.WriteLine(req.Loc, data)).To(BeTrue())
		c.FreeRequest(id, false, true)
	}

	BeforeEach(func() {
		// 2 ways, 4 lines, 64B lines, 4 outstanding requests
		c = cache.NewFetchCache("ColorCache.Fetch", cache.Config{
			Ways:             2,
			Lines:            4,
			LineSize:         64,
			RequestQueueSize: 4,
		})
		src = cache.TraceTag{ID: "stamp-1"}
	})

	Describe("construction", func() {
		It("should reject an invalid geometry", func() {
			Expect(func() {
				cache.NewFetchCache("Bad", cache.Config{Ways: 0, Lines: 4, LineSize: 64, RequestQueueSize: 1})
			}).To(Panic())
			Expect(func() {
				cache.NewFetchCache("Bad", cache.Config{Ways: 1, Lines: 4, LineSize: 48, RequestQueueSize: 1})
			}).To(Panic())
		})
	})

	Describe("Fetch", func() {
		It("should queue a fill on a miss and block reads until it completes", func() {
			loc, err := c.Fetch(0x1000, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.PendingRequests()).To(Equal(1))
			Expect(c.Reserves(loc)).To(Equal(1))

			buf := make([]byte, 16)
			Expect(c.Read(0x1000, loc, 16, buf)).To(BeFalse())

			line := pattern(64, 0x10)
			id, req, ok := c.GetRequest()
			Expect(ok).To(BeTrue())
			Expect(req.InAddress).To(Equal(uint64(0x1000)))
			Expect(req.Fill).To(BeTrue())
			Expect(req.Spill).To(BeFalse())
			Expect(req.Source).To(Equal(src))
			Expect(c.WriteLine(req.Loc, line)).To(BeTrue())
			c.FreeRequest(id, false, true)

			Expect(c.Read(0x1010, loc, 16, buf)).To(BeTrue())
			Expect(buf).To(Equal(line[16:32]))
			Expect(c.FreeRequests()).To(Equal(4))
		})

		It("should hit without memory traffic and add reservations", func() {
			loc, _ := c.Fetch(0x1000, 1, src)
			fill(pattern(64, 0))

			again, err := c.Fetch(0x1020, 2, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(loc))
			Expect(c.Reserves(loc)).To(Equal(3))
			Expect(c.PendingRequests()).To(Equal(0))

			stats := c.Stats()
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("should fail with ErrReservedBusy when every way is reserved", func() {
			_, err := c.Fetch(0x0000, 1, src)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Fetch(0x0100, 1, src)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Fetch(0x0200, 1, src)
			Expect(err).To(MatchError(cache.ErrReservedBusy))
			Expect(c.Stats().ReserveBusy).To(Equal(uint64(1)))
		})

		It("should fail with ErrQueueFull without changing any line", func() {
			small := cache.NewFetchCache("Small", cache.Config{
				Ways: 2, Lines: 4, LineSize: 64, RequestQueueSize: 1,
			})
			first, err := small.Fetch(0x0000, 1, src)
			Expect(err).NotTo(HaveOccurred())

			_, err = small.Fetch(0x0040, 1, src)
			Expect(err).To(MatchError(cache.ErrQueueFull))

			_, found := small.Tags().Search(0x0040)
			Expect(found).To(BeFalse())
			for way := 0; way < 2; way++ {
				loc := cache.Location{Way: way, Line: 1}
				Expect(small.Reserves(loc)).To(Equal(0))
				Expect(small.IsReplacing(loc)).To(BeFalse())
			}
			Expect(small.Reserves(first)).To(Equal(1))
			Expect(small.PendingRequests()).To(Equal(1))
		})

		It("should spill a dirty victim and fill the new address", func() {
			loc, _ := c.Fetch(0x0000, 1, src)
			fill(pattern(64, 0))
			Expect(c.Write(0x0000, loc, 4, []byte{1, 2, 3, 4})).To(BeTrue())
			Expect(c.Reserves(loc)).To(Equal(0))

			// Occupy the other way of line 0.
			other, _ := c.Fetch(0x0100, 1, src)
			fill(pattern(64, 0x40))
			Expect(other.Way).NotTo(Equal(loc.Way))

			victim, err := c.Fetch(0x0200, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(victim).To(Equal(loc))

			_, req, ok := c.GetRequest()
			Expect(ok).To(BeTrue())
			Expect(req.Spill).To(BeTrue())
			Expect(req.Fill).To(BeTrue())
			Expect(req.OutAddress).To(Equal(uint64(0x0000)))
			Expect(req.InAddress).To(Equal(uint64(0x0200)))
		})

		It("should report misses and refuse new ones when the budget is spent", func() {
			_, miss, err := c.FetchMissBudget(0x0000, true, 1, src)
			Expect(miss).To(BeTrue())
			Expect(err).To(MatchError(cache.ErrMissBudget))
			Expect(c.PendingRequests()).To(Equal(0))

			_, miss, err = c.FetchMissBudget(0x0000, false, 1, src)
			Expect(miss).To(BeTrue())
			Expect(err).NotTo(HaveOccurred())
			fill(pattern(64, 0))

			_, miss, err = c.FetchMissBudget(0x0000, true, 1, src)
			Expect(miss).To(BeFalse())
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Allocate", func() {
		It("should claim a masked line without a memory request", func() {
			loc, err := c.Allocate(0x2000, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.PendingRequests()).To(Equal(0))
			Expect(c.IsMasked(loc)).To(BeTrue())
			Expect(c.IsFullyWritten(loc)).To(BeFalse())

			data := pattern(64, 0x80)
			for off := 0; off < 64; off += 16 {
				Expect(c.WriteMasked(0x2000+uint64(off), loc, 16, data[off:off+16], allTrue(16))).To(BeTrue())
			}
			c.Unreserve(loc)

			Expect(c.Reserves(loc)).To(Equal(0))
			Expect(c.IsFullyWritten(loc)).To(BeTrue())
			Expect(c.IsDirty(loc)).To(BeTrue())

			line := make([]byte, 64)
			Expect(c.ReadLine(loc, line)).To(BeTrue())
			Expect(line).To(Equal(data))

			mask := make([]uint32, 16)
			c.ReadMask(loc, mask)
			for _, w := range mask {
				Expect(w).To(Equal(uint32(0xffffffff)))
			}
		})

		It("should queue a spill only request for a dirty victim", func() {
			a, _ := c.Allocate(0x0000, 1, src)
			Expect(c.Write(0x0000, a, 4, []byte{9, 9, 9, 9})).To(BeTrue())
			b, _ := c.Allocate(0x0100, 1, src)
			Expect(c.Write(0x0100, b, 4, []byte{8, 8, 8, 8})).To(BeTrue())

			loc, err := c.Allocate(0x0200, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.IsReplacing(loc)).To(BeTrue())

			id, req, ok := c.GetRequest()
			Expect(ok).To(BeTrue())
			Expect(req.Spill).To(BeTrue())
			Expect(req.Fill).To(BeFalse())
			Expect(req.Masked).To(BeTrue())

			Expect(c.Write(0x0200, loc, 4, []byte{1, 1, 1, 1})).To(BeFalse())
			c.FreeRequest(id, true, false)
			Expect(c.IsReplacing(loc)).To(BeFalse())
			Expect(c.Write(0x0200, loc, 4, []byte{1, 1, 1, 1})).To(BeTrue())
		})
	})

	Describe("masked write", func() {
		It("should only write the masked bytes", func() {
			loc, _ := c.Allocate(0x0000, 1, src)
			mask := make([]bool, 8)
			mask[0], mask[1], mask[6] = true, true, true

			Expect(c.WriteMasked(0x0000, loc, 8, pattern(8, 0x50), mask)).To(BeTrue())

			buf := make([]byte, 8)
			Expect(c.Read(0x0000, loc, 8, buf)).To(BeTrue())
			Expect(buf).To(Equal([]byte{0x50, 0x51, 0, 0, 0, 0, 0x56, 0}))

			words := make([]uint32, 16)
			c.ReadMask(loc, words)
			Expect(words[0]).To(Equal(uint32(0x0000ffff)))
			Expect(words[1]).To(Equal(uint32(0x00ff0000)))

			c.ResetMask(loc)
			c.ReadMask(loc, words)
			Expect(words[0]).To(BeZero())
		})

		It("should record plain writes on a write buffer line", func() {
			loc, _ := c.Allocate(0x0000, 1, src)
			Expect(c.Write(0x0004, loc, 4, []byte{1, 2, 3, 4})).To(BeTrue())

			words := make([]uint32, 16)
			c.ReadMask(loc, words)
			Expect(words[0]).To(BeZero())
			Expect(words[1]).To(Equal(uint32(0xffffffff)))
		})

		It("should not dirty a line when the mask is empty", func() {
			loc, _ := c.Allocate(0x0000, 1, src)
			Expect(c.WriteMasked(0x0000, loc, 4, pattern(4, 0), make([]bool, 4))).To(BeTrue())
			Expect(c.IsDirty(loc)).To(BeFalse())
			Expect(c.Reserves(loc)).To(Equal(0))
		})

		It("should refill a partially written line in place", func() {
			loc, _ := c.Allocate(0x0000, 1, src)
			mask := allTrue(4)
			Expect(c.WriteMasked(0x0000, loc, 4, []byte{1, 2, 3, 4}, mask)).To(BeTrue())

			again, err := c.Fetch(0x0000, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(loc))

			_, req, ok := c.GetRequest()
			Expect(ok).To(BeTrue())
			Expect(req.Spill).To(BeTrue())
			Expect(req.Fill).To(BeTrue())
			Expect(req.Masked).To(BeTrue())
			Expect(req.InAddress).To(Equal(req.OutAddress))
			Expect(c.IsMasked(loc)).To(BeFalse())
		})

		It("should not refill a partially written line that is still reserved", func() {
			loc, _ := c.Allocate(0x0000, 2, src)
			Expect(c.WriteMasked(0x0000, loc, 4, []byte{1, 2, 3, 4}, allTrue(4))).To(BeTrue())

			_, err := c.Fetch(0x0000, 1, src)
			Expect(err).To(MatchError(cache.ErrReservedBusy))
			Expect(c.PendingRequests()).To(Equal(0))
		})
	})

	Describe("protocol violations", func() {
		var loc cache.Location

		BeforeEach(func() {
			loc, _ = c.Fetch(0x0000, 1, src)
			fill(pattern(64, 0))
		})

		It("should panic when reading an address that was not fetched", func() {
			Expect(func() { c.Read(0x0100, loc, 4, make([]byte, 4)) }).To(Panic())
		})

		It("should panic on sizes that are not word multiples", func() {
			Expect(func() { c.Read(0x0000, loc, 3, make([]byte, 4)) }).To(Panic())
		})

		It("should panic on accesses crossing the line", func() {
			Expect(func() { c.Write(0x0038, loc, 16, make([]byte, 16)) }).To(Panic())
			Expect(func() { c.Read(0x0000, loc, 128, make([]byte, 128)) }).To(Panic())
		})

		It("should panic when freeing an unused request", func() {
			Expect(func() { c.FreeRequest(0, true, true) }).To(Panic())
		})
	})

	Describe("FreeRequest", func() {
		var (
			id  int
			loc cache.Location
		)

		BeforeEach(func() {
			loc, _ = c.Allocate(0x0000, 1, src)
			c.Write(0x0000, loc, 4, []byte{1, 2, 3, 4})
			other, _ := c.Allocate(0x0100, 1, src)
			c.Write(0x0100, other, 4, []byte{5, 6, 7, 8})

			// Dirty victim in masked mode: spill and fill share one slot.
			c.Unreserve(loc)
			c.Unreserve(other)
			var err error
			loc, err = c.Fetch(0x0200, 1, src)
			Expect(err).NotTo(HaveOccurred())

			var req *cache.CacheRequest
			id, req, _ = c.GetRequest()
			Expect(req.Spill && req.Fill).To(BeTrue())
		})

		It("should free the slot after fill then spill", func() {
			c.FreeRequest(id, false, true)
			Expect(c.FreeRequests()).To(Equal(3))
			Expect(c.IsReplacing(loc)).To(BeTrue())

			c.FreeRequest(id, true, false)
			Expect(c.FreeRequests()).To(Equal(4))
			Expect(c.IsReplacing(loc)).To(BeFalse())
		})

		It("should free the slot after spill then fill", func() {
			c.FreeRequest(id, true, false)
			Expect(c.FreeRequests()).To(Equal(3))
			Expect(c.IsReplacing(loc)).To(BeTrue())

			c.FreeRequest(id, false, true)
			Expect(c.FreeRequests()).To(Equal(4))
			Expect(c.IsReplacing(loc)).To(BeFalse())
		})
	})

	Describe("Flush", func() {
		It("should spill every valid line and report completion", func() {
			for i := 0; i < 3; i++ {
				loc, err := c.Allocate(uint64(i)*0x40, 1, src)
				Expect(err).NotTo(HaveOccurred())
				c.Write(uint64(i)*0x40, loc, 4, []byte{1, 1, 1, 1})
			}

			Expect(c.Flush()).To(BeFalse())
			Expect(c.PendingRequests()).To(Equal(3))

			for c.PendingRequests() > 0 {
				id, req, _ := c.GetRequest()
				Expect(req.Spill).To(BeTrue())
				Expect(req.Fill).To(BeFalse())
				c.FreeRequest(id, true, false)
			}

			Expect(c.Flush()).To(BeTrue())
			_, found := c.Tags().Search(0x0000)
			Expect(found).To(BeFalse())
		})

		It("should continue when the request queue runs out of slots", func() {
			for i := 0; i < 6; i++ {
				_, err := c.Allocate(uint64(i)*0x40, 1, src)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(c.Flush()).To(BeFalse())
			Expect(c.PendingRequests()).To(Equal(4))

			for c.PendingRequests() > 0 {
				id, _, _ := c.GetRequest()
				c.FreeRequest(id, true, false)
			}

			Expect(c.Flush()).To(BeFalse())
			Expect(c.PendingRequests()).To(Equal(2))
			for c.PendingRequests() > 0 {
				id, _, _ := c.GetRequest()
				c.FreeRequest(id, true, false)
			}
			Expect(c.Flush()).To(BeTrue())
		})

		It("should not evict a line whose spill is still queued", func() {
			loc, _ := c.Allocate(0x0000, 1, src)
			Expect(c.Write(0x0000, loc, 4, []byte{1, 1, 1, 1})).To(BeTrue())
			Expect(c.Flush()).To(BeFalse())

			other, err := c.Fetch(0x0100, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Way).NotTo(Equal(loc.Way))

			_, err = c.Fetch(0x0200, 1, src)
			Expect(err).To(MatchError(cache.ErrReservedBusy))
			Expect(c.IsReplacing(loc)).To(BeTrue())
		})

		It("should not allocate a line again until its spill is written", func() {
			loc, _ := c.Allocate(0x0040, 1, src)
			Expect(c.Write(0x0040, loc, 4, []byte{1, 2, 3, 4})).To(BeTrue())
			Expect(c.Flush()).To(BeFalse())
			Expect(c.SpillPending(0x0044)).To(BeTrue())

			_, err := c.Allocate(0x0040, 1, src)
			Expect(err).To(MatchError(cache.ErrReservedBusy))

			id, req, ok := c.GetRequest()
			Expect(ok).To(BeTrue())
			Expect(req.OutAddress).To(Equal(uint64(0x0040)))

			_, err = c.Allocate(0x0040, 1, src)
			Expect(err).To(MatchError(cache.ErrReservedBusy))

			c.FreeRequest(id, true, false)
			Expect(c.SpillPending(0x0040)).To(BeFalse())

			again, err := c.Allocate(0x0040, 1, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.IsMasked(again)).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("should drop lines, reservations and requests", func() {
			loc, _ := c.Fetch(0x0000, 3, src)
			c.Reset()

			Expect(c.Reserves(loc)).To(Equal(0))
			Expect(c.IsReplacing(loc)).To(BeFalse())
			Expect(c.PendingRequests()).To(Equal(0))
			Expect(c.FreeRequests()).To(Equal(4))
			_, found := c.Tags().Search(0x0000)
			Expect(found).To(BeFalse())
		})
	})
})
