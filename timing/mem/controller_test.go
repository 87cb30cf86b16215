package mem_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/gpucachesim/timing/mem"
)

var _ = Describe("Controller", func() {
	var (
		mockCtrl *gomock.Controller
		port     *MockPort
		ctrl     *mem.Controller
		open     mem.MemState
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		port = NewMockPort(mockCtrl)
		open = mem.ReadAccept | mem.WriteAccept

		ctrl = mem.NewController("Memory", mem.ControllerConfig{
			Latency:   3,
			QueueSize: 4,
			Capacity:  1 << 20,
		})
		ctrl.Attach(port)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic on an invalid configuration", func() {
		Expect(func() {
			mem.NewController("Bad", mem.ControllerConfig{Latency: 1, Capacity: 4096})
		}).To(Panic())
		Expect(func() {
			mem.NewController("Bad", mem.ControllerConfig{QueueSize: 1, Capacity: 100})
		}).To(Panic())
	})

	It("should read the sentinel from memory never written", func() {
		data := ctrl.Read(0x1ffc, 8)

		Expect(binary.LittleEndian.Uint32(data[0:])).To(Equal(mem.Sentinel))
		Expect(binary.LittleEndian.Uint32(data[4:])).To(Equal(mem.Sentinel))
	})

	It("should keep written data next to the sentinel", func() {
		ctrl.Write(0x100, []byte{1, 2, 3, 4})

		data := ctrl.Read(0xfc, 12)

		Expect(binary.LittleEndian.Uint32(data[0:])).To(Equal(mem.Sentinel))
		Expect(data[4:8]).To(Equal([]byte{1, 2, 3, 4}))
		Expect(binary.LittleEndian.Uint32(data[8:])).To(Equal(mem.Sentinel))
	})

	It("should answer a read after the latency", func() {
		ctrl.Write(0x40, []byte{9, 8, 7, 6})
		req := mem.NewReadRequest(0x40, 4, mem.ColorWrite, 0, 7)

		var now uint64
		var got *mem.Transaction
		var gotAt uint64

		port.EXPECT().Update(uint64(0), open).Return(req)
		port.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().ProcessMemoryTransaction(gomock.Any()).
			Do(func(t *mem.Transaction) {
				got = t
				gotAt = now
			})

		for now = 0; now < 6; now++ {
			ctrl.Clock(now)
		}

		Expect(got).NotTo(BeNil())
		Expect(gotAt).To(Equal(uint64(3)))
		Expect(got.Command).To(Equal(mem.ReadData))
		Expect(got.Ticket).To(Equal(uint32(7)))
		Expect(got.Data).To(Equal([]byte{9, 8, 7, 6}))
		Expect(ctrl.InFlight()).To(Equal(0))
	})

	It("should hold the response bus while data is transferred", func() {
		first := mem.NewReadRequest(0x000, 128, mem.ColorWrite, 0, 0)
		second := mem.NewReadRequest(0x080, 128, mem.ColorWrite, 0, 1)

		var now uint64
		var delivered []uint64

		port.EXPECT().Update(uint64(0), open).Return(first)
		port.EXPECT().Update(uint64(1), open).Return(second)
		port.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().ProcessMemoryTransaction(gomock.Any()).
			Do(func(t *mem.Transaction) {
				delivered = append(delivered, now)
			}).Times(2)

		for now = 0; now < 10; now++ {
			ctrl.Clock(now)
		}

		Expect(delivered).To(Equal([]uint64{3, 7}))
	})

	It("should keep read data off the bus during write transfers", func() {
		read := mem.NewReadRequest(0x000, 64, mem.ColorWrite, 0, 0)
		write := mem.NewWrite(0x100, make([]byte, 128), mem.ColorWrite, 0, 1)

		var now uint64
		var delivered []uint64

		port.EXPECT().Update(uint64(0), open).Return(read)
		port.EXPECT().Update(uint64(1), open).Return(write)
		port.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		port.EXPECT().ProcessMemoryTransaction(gomock.Any()).
			Do(func(t *mem.Transaction) {
				delivered = append(delivered, now)
			})

		for now = 0; now < 10; now++ {
			ctrl.Clock(now)
		}

		Expect(delivered).To(Equal([]uint64{6}))
	})

	It("should stop accepting when the read queue is full", func() {
		ctrl = mem.NewController("Small", mem.ControllerConfig{
			Latency:   10,
			QueueSize: 1,
			Capacity:  1 << 20,
		})
		ctrl.Attach(port)

		port.EXPECT().Update(uint64(0), open).
			Return(mem.NewReadRequest(0, 64, mem.ZStencil, 0, 0))
		port.EXPECT().Update(uint64(1), mem.MemState(0)).Return(nil)

		ctrl.Clock(0)
		ctrl.Clock(1)

		Expect(ctrl.Stats().StalledCycles).To(Equal(uint64(1)))
	})

	It("should apply masked writes byte by byte", func() {
		ctrl.Write(0x200, []byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11})
		data := []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
		write := mem.NewMaskedWrite(0x200, data,
			[]uint32{0x0000ffff, 0xff000000}, mem.ColorWrite, 0, 0)

		port.EXPECT().Update(uint64(0), open).Return(write)

		ctrl.Clock(0)

		Expect(ctrl.Read(0x200, 8)).To(Equal(
			[]byte{0xaa, 0xaa, 0x11, 0x11, 0x11, 0x11, 0x11, 0xaa}))
		Expect(ctrl.Stats().Writes).To(Equal(uint64(1)))
		Expect(ctrl.Stats().WriteBytes).To(Equal(uint64(8)))
	})

	It("should trace every transaction", func() {
		tracer := NewMockTracer(mockCtrl)
		ctrl.SetTracer(tracer)

		write := mem.NewWrite(0x300, []byte{1, 2, 3, 4}, mem.ColorWrite, 0, 0)
		port.EXPECT().Update(uint64(5), open).Return(write)
		tracer.EXPECT().Trace(uint64(5), write)

		ctrl.Clock(5)
	})

	It("should panic on accesses beyond the capacity", func() {
		Expect(func() { ctrl.Read(1<<20-4, 8) }).To(Panic())
	})
})
