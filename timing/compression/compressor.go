package compression

// Compressor classifies and encodes cache lines for a render target.
type Compressor interface {
	// Compress encodes a line and reports the level it fits.
	Compress(values []uint32) (Level, []byte)
	// Decompress expands a payload produced by Compress.
	Decompress(level Level, payload []byte, out []uint32)
}

// ColorCompressor compresses color lines using the range of the packed
// color values.
type ColorCompressor struct{}

// NewColorCompressor creates a color compressor.
func NewColorCompressor() *ColorCompressor {
	return &ColorCompressor{}
}

// Compress encodes a color line.
func (ColorCompressor) Compress(values []uint32) (Level, []byte) {
	min, max := BlockMinMax(values)
	return Compress(values, min, max)
}

// Decompress expands a color line.
func (ColorCompressor) Decompress(level Level, payload []byte, out []uint32) {
	Decompress(level, payload, out)
}

// DepthCompressor compresses depth/stencil lines. Lines are encoded on the
// full 32-bit value so that stencil bits survive the round trip. The range
// of the 24-bit depth part seen in the last block is kept for reporting.
type DepthCompressor struct {
	LastMinZ uint32
	LastMaxZ uint32
}

// NewDepthCompressor creates a depth/stencil compressor.
func NewDepthCompressor() *DepthCompressor {
	return &DepthCompressor{}
}

// Compress encodes a depth/stencil line.
func (d *DepthCompressor) Compress(values []uint32) (Level, []byte) {
	minZ, maxZ, min, max := BlockMinMaxZ(values)
	d.LastMinZ, d.LastMaxZ = minZ, maxZ
	return Compress(values, min, max)
}

// Decompress expands a depth/stencil line.
func (d *DepthCompressor) Decompress(level Level, payload []byte, out []uint32) {
	Decompress(level, payload, out)
}
