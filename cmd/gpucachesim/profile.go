package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/sarchlab/gpucachesim/benchmarks"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile the simulator on the built-in workloads.",
	Run: func(cmd *cobra.Command, args []string) {
		cpuProfile, _ := cmd.Flags().GetString("cpuprofile")
		memProfile, _ := cmd.Flags().GetString("memprofile")

		if cpuProfile != "" {
			f, err := os.Create(cpuProfile)
			if err != nil {
				log.Fatalf("could not create CPU profile: %v", err)
			}
			defer func() { _ = f.Close() }()

			if err := pprof.StartCPUProfile(f); err != nil {
				log.Fatalf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		hc := harnessConfig(cmd)
		harness := benchmarks.NewHarness(hc)
		harness.AddBenchmarks(benchmarks.GetStandardBenchmarks())
		results := harness.RunAll()

		summary := benchmarks.Summarize(results)
		fmt.Fprintf(cmd.OutOrStdout(), "%d workloads, %d cycles in %v\n",
			summary.TotalBenchmarks, summary.TotalCycles, summary.TotalWallTime)

		if memProfile != "" {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Fatalf("could not create memory profile: %v", err)
			}
			defer func() { _ = f.Close() }()

			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalf("could not write memory profile: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().String("cpuprofile", "", "Write a CPU profile to file")
	profileCmd.Flags().String("memprofile", "", "Write a memory profile to file")
}
