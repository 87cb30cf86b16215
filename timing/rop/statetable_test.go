package rop_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucachesim/timing/rop"
)

var _ = Describe("Block state encoding", func() {
	It("should pack eight blocks per word and pad the last word", func() {
		states := []rop.BlockState{
			rop.CompressedBest, rop.Uncompressed, rop.Clear, rop.CompressedNormal,
			rop.Clear, rop.Clear, rop.Clear, rop.Clear,
			rop.Uncompressed,
		}

		buf := rop.EncodeBlockStates(states)

		Expect(buf).To(Equal([]byte{0x4a, 0x90, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00}))

		decoded := make([]rop.BlockState, len(states))
		Expect(rop.DecodeBlockStates(buf, decoded)).To(Succeed())
		Expect(decoded).To(Equal(states))
	})

	It("should reject short buffers and unknown codes", func() {
		states := make([]rop.BlockState, 9)

		Expect(rop.DecodeBlockStates(make([]byte, 4), states)).
			To(MatchError(ContainSubstring("cannot hold")))
		Expect(rop.DecodeBlockStates([]byte{0x0f, 0, 0, 0, 0, 0, 0, 0}, states)).
			To(MatchError(ContainSubstring("invalid state code")))
	})
})
