package trace_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/mem"
	"github.com/sarchlab/gpucachesim/timing/trace"
)

var _ = Describe("Writer", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "trace.csv")
	})

	readLines := func() []string {
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	It("should write one row per transaction", func() {
		w, err := trace.NewWriter(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Path()).To(Equal(path))

		req := mem.NewReadRequest(0x2000, 64, mem.ZStencil, 1, 9)
		w.Trace(3, req)
		w.Trace(8, mem.NewReadData(req, make([]byte, 64)))
		Expect(w.Close()).To(Succeed())

		lines := readLines()
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(Equal("cycle,id,command,address,size,source,unit,ticket"))
		Expect(lines[1]).To(HavePrefix("3," + req.ID + ",READ_REQ,0x2000,64,ZSTENCILTEST,1,9"))
		Expect(lines[2]).To(HaveSuffix(",READ_DATA,0x2000,64,ZSTENCILTEST,1,9"))
	})

	It("should buffer rows until flushed", func() {
		w, err := trace.NewWriter(path)
		Expect(err).NotTo(HaveOccurred())

		w.Trace(1, mem.NewWrite(0x40, []byte{1, 2, 3, 4}, mem.ColorWrite, 0, 0))
		Expect(readLines()).To(HaveLen(1))

		Expect(w.Flush()).To(Succeed())
		Expect(readLines()).To(HaveLen(2))

		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())
	})

	It("should refuse to overwrite a file", func() {
		Expect(os.WriteFile(path, []byte("keep"), 0644)).To(Succeed())

		_, err := trace.NewWriter(path)
		Expect(err).To(MatchError(ContainSubstring("already exists")))
	})
})
