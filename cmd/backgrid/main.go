package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "backgrid",
	Short: "backgrid - pick backtesting and parameter-grid optimization",
	Long: `backgrid simulates holding strategy picks under configurable exit rules,
aggregates portfolio risk/return statistics, and sweeps thousands of
rule-parameter combinations to find the configuration that performs best.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
