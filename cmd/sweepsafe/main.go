package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sweepsafe",
	Short: "SweepSafe - layered safety system for backup cleanup",
	Long:  "SweepSafe verifies, risk-scores, and policy-gates backup file cleanup, with recovery points and automatic rollback on failure.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sweepsafe v0.1.0")
	},
}

var verboseFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
