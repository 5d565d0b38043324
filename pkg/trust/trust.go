// Package trust manages the known-peer table: trust scoring, interaction
// bookkeeping, and the gossip exchange that lets nodes learn about each
// other's peers.
package trust

import (
	"context"
	"sort"
	"time"

	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/store"
)

const (
	defaultTrust = 0.5
	manualTrust  = 0.3
	gossipTrust  = 0.2

	minTrust = 0.0
	maxTrust = 1.0

	successDelta = 0.02
	failureDelta = -0.05

	gossipMinTrust = 0.4
	gossipMaxPeers = 20
)

// Manager owns peer CRUD and trust mutation over a persistence backend.
type Manager struct {
	store store.Store
}

// NewManager returns a Manager backed by s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetAll returns every known peer.
func (m *Manager) GetAll(ctx context.Context) ([]store.Peer, error) {
	return m.store.ReadPeers(ctx)
}

// GetPeer returns the peer with the given identifier, or nil if unknown.
func (m *Manager) GetPeer(ctx context.Context, did string) (*store.Peer, error) {
	peers, err := m.store.ReadPeers(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range peers {
		if p.DID == did {
			return &p, nil
		}
	}
	return nil, nil
}

// PeerUpdate carries the optional fields AddOrUpdate should overwrite.
// A nil field leaves the existing (or default, on creation) value alone.
type PeerUpdate struct {
	Trust        *float64
	Alias        *string
	Blocked      *bool
	Source       *string
	MessageCount *int
	LastSeen     *string
}

// AddOrUpdate creates did with defaultTrust if unknown, or overlays update
// onto the existing record. Returns the resulting peer.
func (m *Manager) AddOrUpdate(ctx context.Context, did string, update PeerUpdate) (store.Peer, error) {
	existing, err := m.GetPeer(ctx, did)
	if err != nil {
		return store.Peer{}, err
	}

	var peer store.Peer
	if existing != nil {
		peer = *existing
		peer.LastUpdated = now()
	} else {
		peer = store.Peer{
			DID:         did,
			Trust:       defaultTrust,
			FirstSeen:   now(),
			LastUpdated: now(),
		}
	}

	if update.Trust != nil {
		peer.Trust = *update.Trust
	}
	if update.Alias != nil {
		peer.Alias = *update.Alias
	}
	if update.Blocked != nil {
		peer.Blocked = *update.Blocked
	}
	if update.Source != nil {
		peer.Source = *update.Source
	}
	if update.MessageCount != nil {
		peer.MessageCount = *update.MessageCount
	}
	if update.LastSeen != nil {
		peer.LastSeen = *update.LastSeen
	}

	if err := m.store.UpsertPeer(ctx, peer); err != nil {
		return store.Peer{}, err
	}
	return peer, nil
}

// AddManual adds a peer the owner entered directly, at the lower manual
// default trust, distinct from peers a node discovers on its own.
func (m *Manager) AddManual(ctx context.Context, did, alias string) (store.Peer, error) {
	trust := manualTrust
	update := PeerUpdate{Trust: &trust, Source: strPtr("manual")}
	if alias != "" {
		update.Alias = &alias
	}
	return m.AddOrUpdate(ctx, did, update)
}

// Remove deletes did from the peer table.
func (m *Manager) Remove(ctx context.Context, did string) error {
	return m.store.DeletePeer(ctx, did)
}

// Block marks did as blocked without discarding its trust history.
func (m *Manager) Block(ctx context.Context, did string) error {
	blocked := true
	_, err := m.AddOrUpdate(ctx, did, PeerUpdate{Blocked: &blocked})
	return err
}

// Unblock clears a peer's blocked flag.
func (m *Manager) Unblock(ctx context.Context, did string) error {
	blocked := false
	_, err := m.AddOrUpdate(ctx, did, PeerUpdate{Blocked: &blocked})
	return err
}

func clampTrust(v float64) float64 {
	if v < minTrust {
		return minTrust
	}
	if v > maxTrust {
		return maxTrust
	}
	return v
}

// AdjustTrust shifts did's trust score by delta, clamped to [0, 1], creating
// the peer at defaultTrust first if it is not yet known. Returns the new
// score.
func (m *Manager) AdjustTrust(ctx context.Context, did string, delta float64) (float64, error) {
	peer, err := m.GetPeer(ctx, did)
	if err != nil {
		return 0, err
	}
	current := defaultTrust
	if peer != nil {
		current = peer.Trust
	}
	newScore := clampTrust(current + delta)
	if _, err := m.AddOrUpdate(ctx, did, PeerUpdate{Trust: &newScore}); err != nil {
		return 0, err
	}
	return newScore, nil
}

// RecordInteraction bumps did's message count, refreshes last_seen, and
// nudges trust up on success or down on failure.
func (m *Manager) RecordInteraction(ctx context.Context, did string, successful bool) error {
	peer, err := m.GetPeer(ctx, did)
	if err != nil {
		return err
	}
	trust := defaultTrust
	count := 0
	if peer != nil {
		trust = peer.Trust
		count = peer.MessageCount
	}

	delta := successDelta
	if !successful {
		delta = failureDelta
	}
	newTrust := clampTrust(trust + delta)
	newCount := count + 1
	seenAt := now()

	_, err = m.AddOrUpdate(ctx, did, PeerUpdate{
		Trust:        &newTrust,
		MessageCount: &newCount,
		LastSeen:     &seenAt,
	})
	return err
}

// TrustedPeers returns peers whose trust score is at least minTrust.
func (m *Manager) TrustedPeers(ctx context.Context, minTrust float64) ([]store.Peer, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	trusted := make([]store.Peer, 0, len(all))
	for _, p := range all {
		if p.Trust >= minTrust {
			trusted = append(trusted, p)
		}
	}
	return trusted, nil
}

// GossipPayload returns the DIDs of this node's most trusted peers, sorted
// by trust descending, to share with another node.
func (m *Manager) GossipPayload(ctx context.Context) ([]string, error) {
	trusted, err := m.TrustedPeers(ctx, gossipMinTrust)
	if err != nil {
		return nil, err
	}
	sort.Slice(trusted, func(i, j int) bool {
		return trusted[i].Trust > trusted[j].Trust
	})
	if len(trusted) > gossipMaxPeers {
		trusted = trusted[:gossipMaxPeers]
	}
	dids := make([]string, len(trusted))
	for i, p := range trusted {
		dids[i] = p.DID
	}
	return dids, nil
}

// MergeGossip folds a peer list learned from sourceDID into the table,
// skipping the source itself and any peer already known. Returns the
// number of newly added peers.
func (m *Manager) MergeGossip(ctx context.Context, incomingDIDs []string, sourceDID string) (int, error) {
	added := 0
	for _, did := range incomingDIDs {
		if did == sourceDID {
			continue
		}
		existing, err := m.GetPeer(ctx, did)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}
		trust := gossipTrust
		source := sourceDID
		if _, err := m.AddOrUpdate(ctx, did, PeerUpdate{Trust: &trust, Source: &source}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// PeerCount returns the number of known peers.
func (m *Manager) PeerCount(ctx context.Context) (int, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// DisplayName returns a peer's alias if set, otherwise the @name extracted
// from its identifier, falling back to the raw identifier if it doesn't
// parse as one of ours.
func (m *Manager) DisplayName(ctx context.Context, did string) (string, error) {
	peer, err := m.GetPeer(ctx, did)
	if err != nil {
		return "", err
	}
	if peer != nil && peer.Alias != "" {
		return peer.Alias, nil
	}
	name, err := identity.Name(did)
	if err != nil {
		return did, nil
	}
	return "@" + name, nil
}

func strPtr(s string) *string {
	return &s
}
