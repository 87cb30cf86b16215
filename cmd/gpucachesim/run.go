package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sarchlab/gpucachesim/benchmarks"
	"github.com/sarchlab/gpucachesim/timing/trace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single workload.",
	Long: "`run` draws one workload through the caches. With --trace every " +
		"memory transaction is written to a CSV file.",
	Run: func(cmd *cobra.Command, args []string) {
		hc := harnessConfig(cmd)

		bench, err := workloadFromFlags(cmd)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		var writer *trace.Writer
		if on, _ := cmd.Flags().GetBool("trace"); on {
			path, _ := cmd.Flags().GetString("trace-file")
			writer, err = trace.NewWriter(path)
			if err != nil {
				log.Fatalf("Error creating trace: %v", err)
			}
			hc.Tracer = writer
		}

		harness := benchmarks.NewHarness(hc)
		harness.AddBenchmark(bench)
		results := harness.RunAll()
		harness.PrintResults(results)

		if writer != nil {
			if err := writer.Close(); err != nil {
				log.Fatalf("Error writing trace: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trace written to %s\n", writer.Path())
		}

		if !results[0].Completed {
			log.Fatalf("Workload %s did not complete: %s", bench.Name, results[0].Error)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("width", 256, "Framebuffer width in pixels")
	runCmd.Flags().Int("height", 256, "Framebuffer height in pixels")
	runCmd.Flags().Int("passes", 1, "Number of passes over the stamps")
	runCmd.Flags().String("pattern", "linear", "Stamp order: linear, tiled, random or overdraw")
	runCmd.Flags().Int64("seed", 1, "Seed of the random patterns")
	runCmd.Flags().Bool("masked", false, "Write half of every color stamp")
	runCmd.Flags().Bool("clear", false, "Fast clear the buffers first")
	runCmd.Flags().Bool("texture", false, "Fetch one texel per stamp")
	runCmd.Flags().Bool("trace", false, "Write memory transactions to a CSV file")
	runCmd.Flags().String("trace-file", "", "Trace file name (generated when empty)")
}

func workloadFromFlags(cmd *cobra.Command) (benchmarks.Benchmark, error) {
	flags := cmd.Flags()

	name, _ := flags.GetString("pattern")
	pattern, err := benchmarks.ParsePattern(name)
	if err != nil {
		return benchmarks.Benchmark{}, err
	}

	b := benchmarks.Benchmark{Pattern: pattern}
	b.Width, _ = flags.GetInt("width")
	b.Height, _ = flags.GetInt("height")
	b.Passes, _ = flags.GetInt("passes")
	b.Seed, _ = flags.GetInt64("seed")
	b.Masked, _ = flags.GetBool("masked")
	b.ClearFirst, _ = flags.GetBool("clear")
	b.Texture, _ = flags.GetBool("texture")

	b.Name = fmt.Sprintf("%s_%dx%d", pattern, b.Width, b.Height)
	b.Description = "Command line workload"

	return b, nil
}
