package benchmarks

import (
	"fmt"
	"math/rand"
)

// Pattern is the order in which a workload visits the stamps of the
// framebuffer.
type Pattern int

// Stamp visiting orders.
const (
	// Linear visits stamps in memory order.
	Linear Pattern = iota
	// Tiled visits 8x8 stamp tiles one after the other.
	Tiled
	// Random visits every stamp once in a seeded random order.
	Random
	// Overdraw draws random stamps from the first quarter of the
	// framebuffer, touching each of them several times.
	Overdraw
)

const tileStamps = 8

func (p Pattern) String() string {
	switch p {
	case Linear:
		return "linear"
	case Tiled:
		return "tiled"
	case Random:
		return "random"
	case Overdraw:
		return "overdraw"
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// ParsePattern converts a pattern name.
func ParsePattern(name string) (Pattern, error) {
	for _, p := range []Pattern{Linear, Tiled, Random, Overdraw} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown pattern %q", name)
}

// stampGrid returns the framebuffer size in 2x2 stamps.
func stampGrid(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// stampOrder lists the stamp indexes visited by one pass.
func stampOrder(p Pattern, width, height int, seed int64) []int {
	sx, sy := stampGrid(width, height)
	n := sx * sy
	order := make([]int, 0, n)

	switch p {
	case Linear:
		for i := 0; i < n; i++ {
			order = append(order, i)
		}
	case Tiled:
		for ty := 0; ty < sy; ty += tileStamps {
			for tx := 0; tx < sx; tx += tileStamps {
				for y := ty; y < min(ty+tileStamps, sy); y++ {
					for x := tx; x < min(tx+tileStamps, sx); x++ {
						order = append(order, y*sx+x)
					}
				}
			}
		}
	case Random:
		order = rand.New(rand.NewSource(seed)).Perm(n)
	case Overdraw:
		r := rand.New(rand.NewSource(seed))
		window := max(n/4, 1)
		for i := 0; i < n; i++ {
			order = append(order, r.Intn(window))
		}
	default:
		panic(fmt.Sprintf("benchmarks: unsupported pattern %v", p))
	}

	return order
}

// GetStandardBenchmarks returns the built-in workload set.
func GetStandardBenchmarks() []Benchmark {
	return []Benchmark{
		{
			Name:        "linear_fill",
			Description: "Single pass over a 256x256 target in memory order",
			Width:       256,
			Height:      256,
			Passes:      1,
			Pattern:     Linear,
		},
		{
			Name:        "tiled_clear",
			Description: "Fast clear then two tiled passes - exercises clear fills",
			Width:       256,
			Height:      256,
			Passes:      2,
			Pattern:     Tiled,
			ClearFirst:  true,
		},
		{
			Name:        "random_stamps",
			Description: "Random stamp order - exercises evictions and refills",
			Width:       128,
			Height:      128,
			Passes:      1,
			Pattern:     Random,
			Seed:        1,
		},
		{
			Name:        "masked_overdraw",
			Description: "Partial writes to a hot region - exercises write masks",
			Width:       128,
			Height:      128,
			Passes:      2,
			Pattern:     Overdraw,
			Masked:      true,
			ClearFirst:  true,
			Seed:        7,
		},
		{
			Name:        "textured_fill",
			Description: "Linear fill with one texture fetch per stamp",
			Width:       128,
			Height:      128,
			Passes:      1,
			Pattern:     Linear,
			Texture:     true,
		},
	}
}

// GetQuickBenchmarks returns a small workload set for fast checks.
func GetQuickBenchmarks() []Benchmark {
	return []Benchmark{
		{
			Name:        "quick_linear",
			Description: "Single pass over a 32x32 target",
			Width:       32,
			Height:      32,
			Passes:      1,
			Pattern:     Linear,
		},
		{
			Name:        "quick_masked",
			Description: "Masked overdraw on a cleared 32x32 target with textures",
			Width:       32,
			Height:      32,
			Passes:      2,
			Pattern:     Overdraw,
			Masked:      true,
			ClearFirst:  true,
			Texture:     true,
			Seed:        3,
		},
	}
}
