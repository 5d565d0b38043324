package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect or update this node's identity",
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print this node's DID document",
	RunE:  runIdentityShow,
}

var identityUpdateHostCmd = &cobra.Command{
	Use:   "update-host NEW_HOST",
	Short: "Rewrite the identifier's host component after the node moves",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityUpdateHost,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identityUpdateHostCmd)
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(n.Identity().ToDocument(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runIdentityUpdateHost(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.UpdateHost(args[0]); err != nil {
		return fmt.Errorf("update host: %w", err)
	}
	fmt.Printf("identity host updated to %s; new DID is %s\n", args[0], n.Identity().DID())
	return nil
}
