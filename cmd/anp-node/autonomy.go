package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var autonomyCmd = &cobra.Command{
	Use:   "autonomy",
	Short: "Read or set whether the node auto-approves its own drafted replies",
}

var autonomyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print whether auto-approve is enabled",
	RunE:  runAutonomyGet,
}

var autonomySetCmd = &cobra.Command{
	Use:   "set true|false",
	Short: "Enable or disable auto-approve",
	Args:  cobra.ExactArgs(1),
	RunE:  runAutonomySet,
}

func init() {
	rootCmd.AddCommand(autonomyCmd)
	autonomyCmd.AddCommand(autonomyGetCmd)
	autonomyCmd.AddCommand(autonomySetCmd)
}

func runAutonomyGet(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	enabled, err := n.Store().GetAutoApprove(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(enabled)
	return nil
}

func runAutonomySet(cmd *cobra.Command, args []string) error {
	enabled, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", args[0])
	}

	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Store().SetAutoApprove(context.Background(), enabled); err != nil {
		return err
	}
	fmt.Printf("auto-approve set to %v\n", enabled)
	return nil
}
