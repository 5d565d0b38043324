package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Read or extend the owner context document",
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the full owner context document",
	RunE:  runContextShow,
}

var contextAppendCmd = &cobra.Command{
	Use:   "append SECTION CONTENT",
	Short: "Append a line of content under a section heading",
	Args:  cobra.ExactArgs(2),
	RunE:  runContextAppend,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextAppendCmd)
}

func runContextShow(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	content, err := n.Store().ReadContext(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(content)
	return nil
}

func runContextAppend(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Store().AppendContext(context.Background(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("appended to %s\n", args[0])
	return nil
}
