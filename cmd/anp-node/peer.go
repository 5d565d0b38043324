package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "List and manage known peers",
}

var peerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known peer and its trust score",
	RunE:  runPeerList,
}

var peerAddCmd = &cobra.Command{
	Use:   "add DID",
	Short: "Add or update a peer at manual trust",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerAdd,
}

var peerRemoveCmd = &cobra.Command{
	Use:   "remove DID",
	Short: "Forget a peer entirely",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerRemove,
}

var peerBlockCmd = &cobra.Command{
	Use:   "block DID",
	Short: "Block a peer; inbound messages from it are dropped",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerBlock,
}

var peerUnblockCmd = &cobra.Command{
	Use:   "unblock DID",
	Short: "Unblock a previously blocked peer",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerUnblock,
}

var peerAddAlias string

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerListCmd)
	peerCmd.AddCommand(peerAddCmd)
	peerCmd.AddCommand(peerRemoveCmd)
	peerCmd.AddCommand(peerBlockCmd)
	peerCmd.AddCommand(peerUnblockCmd)

	peerAddCmd.Flags().StringVar(&peerAddAlias, "alias", "", "a friendly label for this peer")
}

func runPeerList(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	peers, err := n.Trust().GetAll(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runPeerAdd(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	peer, err := n.Trust().AddManual(context.Background(), args[0], peerAddAlias)
	if err != nil {
		return err
	}
	fmt.Printf("added %s at trust %.2f\n", peer.DID, peer.Trust)
	return nil
}

func runPeerRemove(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Trust().Remove(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}

func runPeerBlock(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Trust().Block(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("blocked %s\n", args[0])
	return nil
}

func runPeerUnblock(cmd *cobra.Command, args []string) error {
	n, err := openNode(context.Background())
	if err != nil {
		return err
	}
	if err := n.Trust().Unblock(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("unblocked %s\n", args[0])
	return nil
}
