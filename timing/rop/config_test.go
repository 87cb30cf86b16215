package rop_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/rop"
)

var _ = Describe("Config", func() {
	It("should accept the defaults", func() {
		Expect(rop.DefaultColorConfig().Validate()).To(Succeed())
		Expect(rop.DefaultZConfig().Validate()).To(Succeed())
		Expect(rop.DefaultColorConfig().LineSize()).To(Equal(256))
	})

	It("should size the block table from the resolution", func() {
		c := rop.DefaultColorConfig()
		Expect(c.MinBlocks(2048, 2048)).To(Equal(65536))
		Expect(c.MinBlocks(1, 1)).To(Equal(1))
	})

	DescribeTable("should reject",
		func(mutate func(*rop.Config)) {
			c := rop.DefaultColorConfig()
			mutate(&c)
			Expect(c.Validate()).NotTo(Succeed())
		},
		Entry("zero ways", func(c *rop.Config) { c.Ways = 0 }),
		Entry("unaligned stamps", func(c *rop.Config) { c.BytesPerStamp = 6 }),
		Entry("odd line sizes", func(c *rop.Config) { c.StampsPerLine = 3 }),
		Entry("negative resolutions", func(c *rop.Config) { c.MaxResX = -1 }),
		Entry("a small block table", func(c *rop.Config) { c.MaxBlocks = 1024 }),
	)
})
