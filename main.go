// Package main provides the entry point for gpucachesim.
// gpucachesim is a cycle-level model of the GPU color, depth/stencil and
// texture caches built on Akita.
//
// For the full CLI, use: go run ./cmd/gpucachesim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("gpucachesim - GPU Cache Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: gpucachesim <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run        Run a single workload")
	fmt.Println("  bench      Run the built-in workload set")
	fmt.Println("  config     Write the effective configuration")
	fmt.Println("  profile    Profile the simulator")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/gpucachesim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/gpucachesim' instead.")
	}
}
