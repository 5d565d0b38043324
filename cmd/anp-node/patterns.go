package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the writing patterns learned from the owner's corrections",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every learned pattern",
	RunE:  runPatternsList,
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	patterns, err := n.Store().ReadPatterns(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
