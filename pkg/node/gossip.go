package node

import (
	"context"
	"fmt"
	"time"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/trust"
)

// runGossipLoop sends a peer_intro to every sufficiently trusted peer every
// gossipInterval, so the node's peer-table knowledge propagates across the
// network without any central directory.
func (n *Node) runGossipLoop(ctx context.Context) error {
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.sendGossip(ctx); err != nil {
				n.log.Error("gossip round failed", logger.Error(err))
			}
		}
	}
}

func (n *Node) sendGossip(ctx context.Context) error {
	trusted, err := n.trust.TrustedPeers(ctx, gossipMinTrust)
	if err != nil {
		return fmt.Errorf("node: list trusted peers for gossip: %w", err)
	}
	if len(trusted) == 0 {
		return nil
	}

	knownPeers, err := n.trust.GossipPayload(ctx)
	if err != nil {
		return fmt.Errorf("node: build gossip payload: %w", err)
	}

	for _, peer := range trusted {
		if peer.DID == "" {
			continue
		}
		if err := n.sendPeerIntro(ctx, peer.DID, knownPeers); err != nil {
			n.log.Error("failed to send gossip", logger.String("peer", peer.DID), logger.Error(err))
		}
	}
	return nil
}

// bootstrapPeer registers peerDID at a modest starting trust and sends it
// an initial peer_intro, so a freshly configured node can reach its first
// peer without waiting for the gossip timer.
func (n *Node) bootstrapPeer(ctx context.Context, peerDID string) {
	n.log.Info("bootstrapping peer", logger.String("peer", peerDID))

	trustScore := bootstrapTrust
	if _, err := n.trust.AddOrUpdate(ctx, peerDID, trust.PeerUpdate{Trust: &trustScore}); err != nil {
		n.log.Warn("failed to register bootstrap peer", logger.Error(err))
		return
	}

	knownPeers, err := n.trust.GossipPayload(ctx)
	if err != nil {
		n.log.Warn("failed to build bootstrap gossip payload", logger.Error(err))
		return
	}

	if err := n.sendPeerIntro(ctx, peerDID, knownPeers); err != nil {
		n.log.Warn("failed to send bootstrap peer_intro", logger.String("peer", peerDID), logger.Error(err))
		return
	}
	n.log.Info("bootstrap peer_intro sent", logger.String("peer", peerDID))
}

func (n *Node) sendPeerIntro(ctx context.Context, toDID string, knownPeers []string) error {
	msg := message.New(message.PeerIntro, n.identity.DID(), toDID, "peer_intro")
	msg.KnownPeers = knownPeers
	msg.PublicKey = n.identity.PublicKeyB64()
	return n.queue.EnqueueOutbound(ctx, msg)
}
