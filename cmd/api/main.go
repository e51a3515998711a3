package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var envFiles []string

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:     "pulsechat",
	Short:   "Realtime presence, typing and message fan-out server",
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	RunE:    runServe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv file(s) to load before reading the environment (default .env)")
	rootCmd.AddCommand(serveCmd, retentionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
