package texture

import "fmt"

// Config holds texture cache parameters.
type Config struct {
	// Ways is the associativity of the line store.
	Ways int `json:"ways"`
	// Lines is the number of lines per way.
	Lines int `json:"lines"`
	// LineSize is the line size in bytes.
	LineSize int `json:"line_size"`
	// RequestQueueSize is the number of outstanding line fills.
	RequestQueueSize int `json:"request_queue_size"`
	// InputRequests is the number of lines that can be read from memory at
	// the same time.
	InputRequests int `json:"input_requests"`
	// Banks is the number of tag and data banks.
	Banks int `json:"banks"`
	// MaxAccesses is the number of accesses each bank serves per cycle.
	MaxAccesses int `json:"max_accesses"`
	// BankWidth is the interleaving granularity of the banks in bytes.
	BankWidth int `json:"bank_width"`
	// PortWidth is the bytes a read port moves per cycle.
	PortWidth int `json:"port_width"`
	// MissesPerCycle is the number of new misses accepted per cycle.
	MissesPerCycle int `json:"misses_per_cycle"`
	// DecompressLatency is the cycles a line spends in the decompressor.
	DecompressLatency int `json:"decompress_latency"`
}

// DefaultConfig returns the default texture cache parameters.
func DefaultConfig() Config {
	return Config{
		Ways:              4,
		Lines:             16,
		LineSize:          256,
		RequestQueueSize:  16,
		InputRequests:     16,
		Banks:             4,
		MaxAccesses:       2,
		BankWidth:         64,
		PortWidth:         8,
		MissesPerCycle:    2,
		DecompressLatency: 1,
	}
}

// ReadPorts returns the number of read ports, one per bank access.
func (c Config) ReadPorts() int {
	return c.Banks * c.MaxAccesses
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Ways <= 0:
		return fmt.Errorf("ways must be > 0")
	case c.Lines <= 0:
		return fmt.Errorf("lines must be > 0")
	case !isPowerOfTwo(c.LineSize) || c.LineSize < 4:
		return fmt.Errorf("line size %d is not a power of two of at least 4", c.LineSize)
	case c.RequestQueueSize <= 0:
		return fmt.Errorf("request queue size must be > 0")
	case c.InputRequests <= 0:
		return fmt.Errorf("input requests must be > 0")
	case !isPowerOfTwo(c.Banks):
		return fmt.Errorf("banks %d is not a power of two", c.Banks)
	case c.MaxAccesses <= 0:
		return fmt.Errorf("max accesses must be > 0")
	case !isPowerOfTwo(c.BankWidth) || c.BankWidth < 4:
		return fmt.Errorf("bank width %d is not a power of two of at least 4", c.BankWidth)
	case c.PortWidth <= 0:
		return fmt.Errorf("port width must be > 0")
	case c.MissesPerCycle <= 0:
		return fmt.Errorf("misses per cycle must be > 0")
	case c.DecompressLatency <= 0:
		return fmt.Errorf("decompress latency must be > 0")
	}

	return nil
}
