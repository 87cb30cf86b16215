package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sarchlab/gpucachesim/benchmarks"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the built-in workload set.",
	Run: func(cmd *cobra.Command, args []string) {
		csvOutput, _ := cmd.Flags().GetBool("csv")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		quick, _ := cmd.Flags().GetBool("quick")

		hc := harnessConfig(cmd)
		harness := benchmarks.NewHarness(hc)

		if quick {
			harness.AddBenchmarks(benchmarks.GetQuickBenchmarks())
		} else {
			harness.AddBenchmarks(benchmarks.GetStandardBenchmarks())
		}

		if !csvOutput && !jsonOutput {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "GPU Cache Benchmark Harness")
			fmt.Fprintln(out, "===========================")
			fmt.Fprintf(out, "Color cache: %d ways x %d lines of %d bytes\n",
				hc.Config.ColorCache.Ways, hc.Config.ColorCache.Lines,
				hc.Config.ColorCache.LineSize())
			fmt.Fprintf(out, "Memory latency: %d cycles\n", hc.Config.Memory.Latency)
			fmt.Fprintln(out, "")
		}

		results := harness.RunAll()

		switch {
		case jsonOutput:
			if err := harness.PrintJSON(results); err != nil {
				log.Fatalf("Error writing JSON: %v", err)
			}
		case csvOutput:
			harness.PrintCSV(results)
		default:
			harness.PrintResults(results)
		}
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().Bool("csv", false, "Output results in CSV format")
	benchCmd.Flags().Bool("json", false, "Output results in JSON format")
	benchCmd.Flags().Bool("quick", false, "Run the small workload set")
	benchCmd.MarkFlagsMutuallyExclusive("csv", "json")
}
