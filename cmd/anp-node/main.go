package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "anp-node",
	Short: "anp-node runs and administers a personal agent network node",
	Long: `anp-node is the reference node for the agent network protocol: it owns a
single Ed25519 identity, exchanges signed messages with peers over HTTP,
and applies an owner's presence mood and trust policy to decide what gets
answered automatically and what waits for human review.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file (overrides the default loader)")
}
