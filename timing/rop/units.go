package rop

import (
	"fmt"

	"github.com/sarchlab/gpucachesim/timing/compression"
	"github.com/sarchlab/gpucachesim/timing/ident"
	"github.com/sarchlab/gpucachesim/timing/mem"
)

// NewColorCache creates the cache of a color write unit.
func NewColorCache(config Config, ids *ident.Factory) *BlockCache {
	id := ids.Next("ColorCache")

	return NewBlockCache(
		fmt.Sprintf("ColorCache[%d]", id),
		config,
		compression.NewColorCompressor(),
		mem.ColorWrite,
		id,
	)
}

// NewZCache creates the cache of a depth/stencil test unit.
func NewZCache(config Config, ids *ident.Factory) *BlockCache {
	id := ids.Next("ZCache")

	return NewBlockCache(
		fmt.Sprintf("ZCache[%d]", id),
		config,
		compression.NewDepthCompressor(),
		mem.ZStencil,
		id,
	)
}

// DepthStencil packs a 24-bit depth and an 8-bit stencil value.
func DepthStencil(depth uint32, stencil uint8) uint32 {
	return uint32(stencil)<<24 | depth&0x00ffffff
}

// ClearDepthStencil is Clear with a packed depth/stencil value.
func (c *BlockCache) ClearDepthStencil(depth uint32, stencil uint8) bool {
	return c.Clear(DepthStencil(depth, stencil))
}
