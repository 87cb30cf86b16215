package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration as JSON.",
	Long: "`config --out FILE` writes the defaults, or the file given with " +
		"--config after validation, so that it can be edited.",
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")
		cfg := loadConfig(cmd)

		if err := cfg.Save(out); err != nil {
			log.Fatalf("Error saving configuration: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", out)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().String("out", "gpucachesim.json", "Output file")
}
