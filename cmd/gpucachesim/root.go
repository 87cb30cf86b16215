package main

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gpucachesim/benchmarks"
	"github.com/sarchlab/gpucachesim/timing/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gpucachesim",
	Short: "Cycle-level simulator of the GPU color, depth and texture caches.",
	Long: `gpucachesim drives the color, depth/stencil and texture caches of a ` +
		`GPU with synthetic raster workloads and reports their timing, ` +
		`memory traffic and compression.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a JSON configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
}

// loadConfig returns the configuration named by --config, or the defaults.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default()
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration %s: %v", path, err)
	}

	return cfg
}

// harnessConfig builds a harness configuration from the common flags.
func harnessConfig(cmd *cobra.Command) benchmarks.HarnessConfig {
	hc := benchmarks.DefaultConfig()
	hc.Config = loadConfig(cmd)
	hc.Verbose, _ = cmd.Flags().GetBool("verbose")
	hc.Output = cmd.OutOrStdout()

	return hc
}
