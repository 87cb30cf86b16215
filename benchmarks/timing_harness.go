// Package benchmarks provides the workload harness used to measure the GPU
// cache models.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/gpucachesim/timing/config"
	"github.com/sarchlab/gpucachesim/timing/ident"
	"github.com/sarchlab/gpucachesim/timing/mem"
	"github.com/sarchlab/gpucachesim/timing/rop"
	"github.com/sarchlab/gpucachesim/timing/texture"
)

// textureSize is the size of the texture sampled by textured workloads.
const textureSize = 64 * 1024

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// Stamps is the number of stamps drawn per cache
	Stamps int `json:"stamps"`

	// SimulatedCycles is the number of cycles until every cache was flushed
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Completed is false when the run hit the cycle limit or failed
	Completed bool `json:"completed"`

	// Error describes why the workload could not be run
	Error string `json:"error,omitempty"`

	// Line store hits and misses per cache
	ColorHits     uint64 `json:"color_hits"`
	ColorMisses   uint64 `json:"color_misses"`
	ZHits         uint64 `json:"z_hits"`
	ZMisses       uint64 `json:"z_misses"`
	TextureHits   uint64 `json:"texture_hits,omitempty"`
	TextureMisses uint64 `json:"texture_misses,omitempty"`

	// Memory traffic seen by the controller
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`

	// Blocks written to memory per compression level, both caches
	BlocksUncompressed uint64 `json:"blocks_uncompressed"`
	BlocksNormal       uint64 `json:"blocks_normal"`
	BlocksBest         uint64 `json:"blocks_best"`

	// ClearFills counts lines filled with the clear value
	ClearFills uint64 `json:"clear_fills"`

	// Stall counters
	PortStalls   uint64 `json:"port_stalls"`
	HazardStalls uint64 `json:"hazard_stalls"`
	DriverStalls uint64 `json:"driver_stalls"`
	MemoryStalls uint64 `json:"memory_stalls"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single workload.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Width and Height are the framebuffer size in pixels
	Width  int
	Height int

	// Passes is the number of times the stamp order is replayed
	Passes int

	// Pattern is the stamp visiting order
	Pattern Pattern

	// Masked writes half of every color stamp
	Masked bool

	// ClearFirst fast clears both buffers before drawing
	ClearFirst bool

	// Texture fetches one texel per stamp through a texture cache
	Texture bool

	// Seed drives the random patterns
	Seed int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Config holds the cache and memory parameters (default: config.Default())
	Config *config.Config

	// MaxCycles bounds each run
	MaxCycles uint64

	// Tracer receives every memory transaction when set
	Tracer mem.Tracer

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Config:    config.Default(),
		MaxCycles: 50_000_000,
		Output:    os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	def := DefaultConfig()
	if config.Output == nil {
		config.Output = def.Output
	}
	if config.Config == nil {
		config.Config = def.Config
	}
	if config.MaxCycles == 0 {
		config.MaxCycles = def.MaxCycles
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		results = append(results, result)

		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "%s: %d cycles, completed=%v\n",
				result.Name, result.SimulatedCycles, result.Completed)
		}
	}

	return results
}

// layout places the color buffer, the depth/stencil buffer and the texture
// one after the other in memory.
type layout struct {
	color   uint64
	z       uint64
	texture uint64
	end     uint64
}

func (h *Harness) layout() layout {
	cfg := h.config.Config

	l := layout{color: rop.DefaultBufferAddress}
	l.z = l.color + uint64(cfg.ColorCache.MaxBlocks*cfg.ColorCache.LineSize())
	l.texture = l.z + uint64(cfg.ZCache.MaxBlocks*cfg.ZCache.LineSize())
	l.end = l.texture + textureSize

	return l
}

func (h *Harness) check(bench Benchmark, l layout) error {
	cfg := h.config.Config

	if err := cfg.Validate(); err != nil {
		return err
	}
	if bench.Width <= 0 || bench.Height <= 0 {
		return fmt.Errorf("invalid framebuffer %dx%d", bench.Width, bench.Height)
	}
	if l.end > cfg.Memory.Capacity {
		return fmt.Errorf("buffers need %d bytes of memory, have %d",
			l.end, cfg.Memory.Capacity)
	}

	sx, sy := stampGrid(bench.Width, bench.Height)
	for _, c := range []rop.Config{cfg.ColorCache, cfg.ZCache} {
		if sx*sy > c.MaxBlocks*c.StampsPerLine {
			return fmt.Errorf("%dx%d framebuffer exceeds %d blocks",
				bench.Width, bench.Height, c.MaxBlocks)
		}
	}

	return nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}

	l := h.layout()
	if err := h.check(bench, l); err != nil {
		result.Error = err.Error()
		return result
	}

	cfg := h.config.Config
	ids := ident.NewFactory()

	ctrl := mem.NewController("Memory", cfg.Memory)
	if h.config.Tracer != nil {
		ctrl.SetTracer(h.config.Tracer)
	}

	color := rop.NewColorCache(cfg.ColorCache, ids)
	z := rop.NewZCache(cfg.ZCache, ids)
	ctrl.Attach(color)
	ctrl.Attach(z)

	var tex *texture.Cache
	if bench.Texture {
		tex = texture.NewTextureCache(cfg.TextureCache, ids)
		ctrl.Attach(tex)
	}

	// The first cycle resets the caches, which reloads the default buffer
	// address.
	ctrl.Clock(0)
	z.Swap(l.z)

	order := stampOrder(bench.Pattern, bench.Width, bench.Height, bench.Seed)
	colorDriver := newStampDriver(color, bench, order, false)
	drivers := []driver{colorDriver, newStampDriver(z, bench, order, true)}
	if tex != nil {
		drivers = append(drivers, newTexelDriver(tex, l.texture, textureSize, colorDriver.total()))
	}

	result.Stamps = colorDriver.total()

	start := time.Now()

	cycle := uint64(1)
	for ; cycle <= h.config.MaxCycles; cycle++ {
		finished := true
		for _, d := range drivers {
			if !d.done() {
				d.step()
				finished = false
			}
		}
		if finished {
			result.Completed = true
			break
		}

		ctrl.Clock(cycle)
	}

	result.WallTime = time.Since(start)
	result.SimulatedCycles = min(cycle, h.config.MaxCycles)

	h.collect(&result, ctrl, color, z, tex)
	for _, d := range drivers {
		result.DriverStalls += d.stalls()
	}

	return result
}

func (h *Harness) collect(
	r *BenchmarkResult,
	ctrl *mem.Controller,
	color, z *rop.BlockCache,
	tex *texture.Cache,
) {
	cs := color.FetchCache().Stats()
	r.ColorHits, r.ColorMisses = cs.Hits, cs.Misses

	zs := z.FetchCache().Stats()
	r.ZHits, r.ZMisses = zs.Hits, zs.Misses

	if tex != nil {
		ts := tex.FetchCache().Stats()
		r.TextureHits, r.TextureMisses = ts.Hits, ts.Misses
	}

	ms := ctrl.Stats()
	r.BytesRead = ms.ReadBytes
	r.BytesWritten = ms.WriteBytes
	r.MemoryStalls = ms.StalledCycles

	for _, s := range []rop.Statistics{color.Stats(), z.Stats()} {
		r.BlocksUncompressed += s.BlocksUncompressed
		r.BlocksNormal += s.BlocksNormal
		r.BlocksBest += s.BlocksBest
		r.ClearFills += s.ClearFills
		r.PortStalls += s.PortStalls
		r.HazardStalls += s.HazardStalls
	}
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== GPU Cache Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
			_, _ = fmt.Fprintln(h.config.Output, "")
			continue
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Stamps:           %d\n", r.Stamps)
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Completed:        %v\n", r.Completed)
		_, _ = fmt.Fprintf(h.config.Output, "  Port Stalls:      %d\n", r.PortStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Hazard Stalls:    %d\n", r.HazardStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Driver Stalls:    %d\n", r.DriverStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Memory Stalls:    %d\n", r.MemoryStalls)

		_, _ = fmt.Fprintln(h.config.Output, "  --- Color Cache ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.ColorHits)
		_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.ColorMisses)

		_, _ = fmt.Fprintln(h.config.Output, "  --- Z Cache ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.ZHits)
		_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.ZMisses)

		if r.TextureHits > 0 || r.TextureMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Texture Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.TextureHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.TextureMisses)
		}

		_, _ = fmt.Fprintln(h.config.Output, "  --- Memory ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Bytes Read:    %d\n", r.BytesRead)
		_, _ = fmt.Fprintf(h.config.Output, "  Bytes Written: %d\n", r.BytesWritten)
		_, _ = fmt.Fprintf(h.config.Output, "  Blocks (uncompressed/normal/best): %d/%d/%d\n",
			r.BlocksUncompressed, r.BlocksNormal, r.BlocksBest)
		_, _ = fmt.Fprintf(h.config.Output, "  Clear Fills:   %d\n", r.ClearFills)

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,stamps,cycles,completed,color_hits,color_misses,z_hits,z_misses,texture_hits,texture_misses,bytes_read,bytes_written,blocks_uncompressed,blocks_normal,blocks_best,clear_fills")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%v,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Stamps,
			r.SimulatedCycles,
			r.Completed,
			r.ColorHits,
			r.ColorMisses,
			r.ZHits,
			r.ZMisses,
			r.TextureHits,
			r.TextureMisses,
			r.BytesRead,
			r.BytesWritten,
			r.BlocksUncompressed,
			r.BlocksNormal,
			r.BlocksBest,
			r.ClearFills,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config is the cache and memory configuration used
	Config *config.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Completed is the number of benchmarks that ran to the end
	Completed int `json:"completed"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// CompressionRatio is the share of blocks written compressed
	CompressionRatio float64 `json:"compression_ratio"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Version is reported in benchmark reports.
const Version = "0.1.0"

// Summarize aggregates a set of results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}

	var compressed, blocks uint64
	for _, r := range results {
		if r.Completed {
			s.Completed++
		}
		s.TotalCycles += r.SimulatedCycles
		s.TotalWallTime += r.WallTime

		compressed += r.BlocksNormal + r.BlocksBest
		blocks += r.BlocksUncompressed + r.BlocksNormal + r.BlocksBest
	}

	if blocks > 0 {
		s.CompressionRatio = float64(compressed) / float64(blocks)
	}

	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    h.config.Config,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
