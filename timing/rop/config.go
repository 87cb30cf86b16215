package rop

import "fmt"

// StampFragments is the number of fragments in a stamp.
const StampFragments = 4

// Config holds the parameters of a block compression cache.
type Config struct {
	// Ways is the associativity of the line store.
	Ways int `json:"ways"`
	// Lines is the number of lines per way.
	Lines int `json:"lines"`
	// StampsPerLine is the number of stamps held by a line.
	StampsPerLine int `json:"stamps_per_line"`
	// BytesPerStamp is the size of a stamp in bytes.
	BytesPerStamp int `json:"bytes_per_stamp"`
	// ReadPorts is the number of cache read ports.
	ReadPorts int `json:"read_ports"`
	// WritePorts is the number of cache write ports.
	WritePorts int `json:"write_ports"`
	// PortWidth is the bytes a port moves per cycle.
	PortWidth int `json:"port_width"`
	// RequestQueueSize is the number of outstanding line replacements.
	RequestQueueSize int `json:"request_queue_size"`
	// InputRequests is the number of blocks that can be read from memory
	// at the same time.
	InputRequests int `json:"input_requests"`
	// OutputRequests is the number of blocks that can be written to memory
	// at the same time.
	OutputRequests int `json:"output_requests"`
	// DisableCompression writes every block uncompressed.
	DisableCompression bool `json:"disable_compression"`
	// MaxBlocks is the size of the block state table.
	MaxBlocks int `json:"max_blocks"`
	// BlocksPerCycle is the number of block states cleared per cycle.
	BlocksPerCycle int `json:"blocks_per_cycle"`
	// CompressLatency is the compressor latency in cycles.
	CompressLatency int `json:"compress_latency"`
	// DecompressLatency is the decompressor latency in cycles.
	DecompressLatency int `json:"decompress_latency"`
	// MaxResX and MaxResY are the largest supported framebuffer. When set,
	// MaxBlocks must cover it.
	MaxResX int `json:"max_res_x"`
	MaxResY int `json:"max_res_y"`
}

// DefaultColorConfig returns the default color cache parameters.
func DefaultColorConfig() Config {
	return Config{
		Ways:              4,
		Lines:             16,
		StampsPerLine:     16,
		BytesPerStamp:     16,
		ReadPorts:         2,
		WritePorts:        2,
		PortWidth:         32,
		RequestQueueSize:  8,
		InputRequests:     8,
		OutputRequests:    8,
		MaxBlocks:         65536,
		BlocksPerCycle:    256,
		CompressLatency:   6,
		DecompressLatency: 6,
		MaxResX:           2048,
		MaxResY:           2048,
	}
}

// DefaultZConfig returns the default depth/stencil cache parameters.
func DefaultZConfig() Config {
	c := DefaultColorConfig()
	c.CompressLatency = 4
	c.DecompressLatency = 4

	return c
}

// LineSize returns the line size in bytes.
func (c Config) LineSize() int {
	return c.StampsPerLine * c.BytesPerStamp
}

// MinBlocks returns the block state entries needed to cover a framebuffer.
func (c Config) MinBlocks(resX, resY int) int {
	perBlock := c.StampsPerLine * StampFragments
	return (resX*resY + perBlock - 1) / perBlock
}

// Validate checks the configuration.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"ways", c.Ways},
		{"lines", c.Lines},
		{"stamps per line", c.StampsPerLine},
		{"bytes per stamp", c.BytesPerStamp},
		{"read ports", c.ReadPorts},
		{"write ports", c.WritePorts},
		{"port width", c.PortWidth},
		{"request queue size", c.RequestQueueSize},
		{"input requests", c.InputRequests},
		{"output requests", c.OutputRequests},
		{"max blocks", c.MaxBlocks},
		{"blocks per cycle", c.BlocksPerCycle},
		{"compress latency", c.CompressLatency},
		{"decompress latency", c.DecompressLatency},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}

	if c.BytesPerStamp%4 != 0 {
		return fmt.Errorf("bytes per stamp must be a multiple of 4")
	}

	size := c.LineSize()
	if size&(size-1) != 0 {
		return fmt.Errorf("line size %d is not a power of two", size)
	}

	if c.MaxResX < 0 || c.MaxResY < 0 {
		return fmt.Errorf("maximum resolution must not be negative")
	}
	if need := c.MinBlocks(c.MaxResX, c.MaxResY); c.MaxBlocks < need {
		return fmt.Errorf("max blocks %d cannot cover %dx%d (%d needed)",
			c.MaxBlocks, c.MaxResX, c.MaxResY, need)
	}

	return nil
}
