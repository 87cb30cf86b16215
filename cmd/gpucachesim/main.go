// Command gpucachesim runs the GPU cache models against synthetic raster
// workloads.
//
// Usage:
//
//	go run ./cmd/gpucachesim run --width 256 --height 256 --pattern tiled --trace
//	go run ./cmd/gpucachesim bench --csv > results.csv
//	go run ./cmd/gpucachesim config --out gpucachesim.json
//	go run ./cmd/gpucachesim profile --cpuprofile cpu.prof
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	Execute()
	atexit.Exit(0)
}
