package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var moodCmd = &cobra.Command{
	Use:   "mood",
	Short: "Read or set the owner's presence mood",
}

var moodGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current mood",
	RunE:  runMoodGet,
}

var moodSetCmd = &cobra.Command{
	Use:   "set MOOD",
	Short: "Set the current mood",
	Args:  cobra.ExactArgs(1),
	RunE:  runMoodSet,
}

func init() {
	rootCmd.AddCommand(moodCmd)
	moodCmd.AddCommand(moodGetCmd)
	moodCmd.AddCommand(moodSetCmd)
}

func runMoodGet(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	mood, err := n.Store().GetMood(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(mood)
	return nil
}

func runMoodSet(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Store().SetMood(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("mood set to %s\n", args[0])
	return nil
}
