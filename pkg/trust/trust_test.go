package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anp-network/node/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(s)
}

func TestAddOrUpdate_CreatesWithDefaultTrust(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	peer, err := m.AddOrUpdate(ctx, "did:wba:x:alice", PeerUpdate{})
	require.NoError(t, err)
	assert.Equal(t, defaultTrust, peer.Trust)
	assert.NotEmpty(t, peer.FirstSeen)
}

func TestAddOrUpdate_OverlaysOntoExisting(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddOrUpdate(ctx, "did:wba:x:alice", PeerUpdate{})
	require.NoError(t, err)

	alias := "Alice"
	peer, err := m.AddOrUpdate(ctx, "did:wba:x:alice", PeerUpdate{Alias: &alias})
	require.NoError(t, err)
	assert.Equal(t, "Alice", peer.Alias)
	assert.Equal(t, defaultTrust, peer.Trust)

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAddManual_UsesManualTrust(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	peer, err := m.AddManual(ctx, "did:wba:x:bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, manualTrust, peer.Trust)
	assert.Equal(t, "manual", peer.Source)
	assert.Equal(t, "Bob", peer.Alias)
}

func TestBlockUnblock(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Block(ctx, "did:wba:x:carol"))
	peer, err := m.GetPeer(ctx, "did:wba:x:carol")
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.True(t, peer.Blocked)

	require.NoError(t, m.Unblock(ctx, "did:wba:x:carol"))
	peer, err = m.GetPeer(ctx, "did:wba:x:carol")
	require.NoError(t, err)
	assert.False(t, peer.Blocked)
}

func TestAdjustTrust_ClampsToUnitInterval(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	score, err := m.AdjustTrust(ctx, "did:wba:x:dave", 10.0)
	require.NoError(t, err)
	assert.Equal(t, maxTrust, score)

	score, err = m.AdjustTrust(ctx, "did:wba:x:dave", -10.0)
	require.NoError(t, err)
	assert.Equal(t, minTrust, score)
}

func TestRecordInteraction_SuccessIncreasesTrustAndCount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordInteraction(ctx, "did:wba:x:eve", true))
	peer, err := m.GetPeer(ctx, "did:wba:x:eve")
	require.NoError(t, err)
	assert.InDelta(t, defaultTrust+successDelta, peer.Trust, 1e-9)
	assert.Equal(t, 1, peer.MessageCount)
	assert.NotEmpty(t, peer.LastSeen)
}

func TestRecordInteraction_FailureDecreasesTrust(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordInteraction(ctx, "did:wba:x:frank", false))
	peer, err := m.GetPeer(ctx, "did:wba:x:frank")
	require.NoError(t, err)
	assert.InDelta(t, defaultTrust+failureDelta, peer.Trust, 1e-9)
}

func TestTrustedPeers_FiltersByThreshold(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	lowTrust := 0.1
	highTrust := 0.9
	_, err := m.AddOrUpdate(ctx, "did:wba:x:low", PeerUpdate{Trust: &lowTrust})
	require.NoError(t, err)
	_, err = m.AddOrUpdate(ctx, "did:wba:x:high", PeerUpdate{Trust: &highTrust})
	require.NoError(t, err)

	trusted, err := m.TrustedPeers(ctx, 0.4)
	require.NoError(t, err)
	require.Len(t, trusted, 1)
	assert.Equal(t, "did:wba:x:high", trusted[0].DID)
}

func TestGossipPayload_SortedDescAndLimited(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	scores := map[string]float64{
		"did:wba:x:a": 0.9,
		"did:wba:x:b": 0.5,
		"did:wba:x:c": 0.7,
		"did:wba:x:d": 0.3, // below gossip threshold, excluded
	}
	for did, score := range scores {
		s := score
		_, err := m.AddOrUpdate(ctx, did, PeerUpdate{Trust: &s})
		require.NoError(t, err)
	}

	payload, err := m.GossipPayload(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:wba:x:a", "did:wba:x:c", "did:wba:x:b"}, payload)
}

func TestMergeGossip_SkipsSourceAndKnownPeers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddOrUpdate(ctx, "did:wba:x:known", PeerUpdate{})
	require.NoError(t, err)

	added, err := m.MergeGossip(ctx, []string{
		"did:wba:x:source",
		"did:wba:x:known",
		"did:wba:x:new1",
		"did:wba:x:new2",
	}, "did:wba:x:source")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	peer, err := m.GetPeer(ctx, "did:wba:x:new1")
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, gossipTrust, peer.Trust)
	assert.Equal(t, "did:wba:x:source", peer.Source)
}

func TestPeerCount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	count, err := m.PeerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = m.AddOrUpdate(ctx, "did:wba:x:alice", PeerUpdate{})
	require.NoError(t, err)

	count, err = m.PeerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDisplayName_PrefersAliasThenDIDName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	alias := "Alice"
	_, err := m.AddOrUpdate(ctx, "did:wba:example.com:alice", PeerUpdate{Alias: &alias})
	require.NoError(t, err)

	name, err := m.DisplayName(ctx, "did:wba:example.com:alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	name, err = m.DisplayName(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, "@bob", name)
}

func TestRemove(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddOrUpdate(ctx, "did:wba:x:alice", PeerUpdate{})
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, "did:wba:x:alice"))

	peer, err := m.GetPeer(ctx, "did:wba:x:alice")
	require.NoError(t, err)
	assert.Nil(t, peer)
}
