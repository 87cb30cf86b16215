package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should validate the defaults", func() {
		c := config.Default()

		Expect(c.Validate()).To(Succeed())
		Expect(c.ColorCache.DecompressLatency).To(Equal(6))
		Expect(c.ZCache.DecompressLatency).To(Equal(4))
		Expect(c.Memory.Latency).To(Equal(20))
	})

	It("should round trip through a file", func() {
		path := filepath.Join(dir, "config.json")

		c := config.Default()
		c.ColorCache.DisableCompression = true
		c.TextureCache.MissesPerCycle = 3
		Expect(c.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(c))
	})

	It("should keep defaults for fields missing from the file", func() {
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path,
			[]byte(`{"memory": {"latency": 50}, "z_cache": {"ways": 8}}`), 0644)).
			To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Memory.Latency).To(Equal(50))
		Expect(loaded.Memory.QueueSize).To(Equal(64))
		Expect(loaded.ZCache.Ways).To(Equal(8))
		Expect(loaded.ZCache.Lines).To(Equal(16))
		Expect(loaded.ColorCache).To(Equal(config.Default().ColorCache))
	})

	It("should report missing and malformed files", func() {
		_, err := config.Load(filepath.Join(dir, "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("failed to read config file")))

		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte("{"), 0644)).To(Succeed())
		_, err = config.Load(path)
		Expect(err).To(MatchError(ContainSubstring("failed to parse config")))
	})

	It("should name the section of an invalid field", func() {
		c := config.Default()
		c.TextureCache.Banks = 3
		Expect(c.Validate()).To(MatchError(ContainSubstring("texture_cache")))

		c = config.Default()
		c.Memory.QueueSize = 0
		Expect(c.Validate()).To(MatchError(ContainSubstring("memory")))
	})

	It("should clone independently", func() {
		c := config.Default()
		clone := c.Clone()
		clone.ColorCache.Ways = 1

		Expect(c.ColorCache.Ways).To(Equal(4))
		Expect(clone.ColorCache.Ways).To(Equal(1))
	})
})
