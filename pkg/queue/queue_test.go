package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/engine"
	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
	"github.com/anp-network/node/pkg/transport"
	"github.com/anp-network/node/pkg/trust"
)

func newTestManager(t *testing.T, extract func() (int, error)) (*Manager, store.Store, *trust.Manager, *identity.Identity) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	self, err := identity.Generate("ada", "ada.example")
	require.NoError(t, err)
	// The engine reads the identity record to build its system prompt, and a
	// missing record is a hard error.
	require.NoError(t, s.WriteIdentity(context.Background(), store.IdentityRecord{ID: self.DID(), DisplayName: "Ada", Domain: "ada.example"}))

	tm := trust.NewManager(s)
	eng := engine.New(s, provider.NewMockProvider("a considered reply"), logger.NewDefaultLogger())
	resolver := transport.NewResolver(time.Second)
	sender := transport.NewSender(resolver, time.Second)

	m := New(s, tm, eng, sender, self, logger.NewDefaultLogger(), extract)
	return m, s, tm, self
}

func TestClassify_BlockedPeerAlwaysRejectsRegardlessOfMood(t *testing.T) {
	m, s, tm, _ := newTestManager(t, nil)
	ctx := context.Background()

	_, err := tm.AddManual(ctx, "did:wba:example.com:bob", "bob")
	require.NoError(t, err)
	require.NoError(t, tm.Block(ctx, "did:wba:example.com:bob"))
	require.NoError(t, s.SetMood(ctx, store.MoodAvailable))

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusRejected, status)
	assert.Equal(t, reasonBlockedPeer, reason)
}

func TestClassify_DNDRejectsEvenWithAutoApprove(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodDND))
	require.NoError(t, s.SetAutoApprove(ctx, true))

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusRejected, status)
	assert.Equal(t, reasonDND, reason)
}

func TestClassify_GlobalAutoApproveWins(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))
	require.NoError(t, s.SetAutoApprove(ctx, true))

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusAutoApproved, status)
	assert.Equal(t, reasonAutoApprove, reason)
}

func TestClassify_AvailableAutoApprovesAboveTrustFloor(t *testing.T) {
	m, s, tm, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAvailable))
	_, err := tm.AddOrUpdate(ctx, "did:wba:example.com:bob", trust.PeerUpdate{Trust: floatPtr(0.3)})
	require.NoError(t, err)

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusAutoApproved, status)
	assert.Equal(t, reasonMoodAvailable, reason)
}

func TestClassify_AvailableBelowTrustFloorIsPending(t *testing.T) {
	m, s, tm, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAvailable))
	_, err := tm.AddOrUpdate(ctx, "did:wba:example.com:bob", trust.PeerUpdate{Trust: floatPtr(0.1)})
	require.NoError(t, err)

	status, _, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusPendingHumanReview, status)
}

func TestClassify_ModerateRequiresMaturityAndTrust(t *testing.T) {
	m, s, tm, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodModerate))
	// A low-but-nonzero threshold: a fresh node's maturity score is small
	// but positive (the logistic curves never reach exactly zero), so
	// setting a threshold below that floor lets auto-approval through.
	require.NoError(t, s.WriteBudget(ctx, store.Budget{AutonomyThreshold: 0.05}))
	_, err := tm.AddOrUpdate(ctx, "did:wba:example.com:bob", trust.PeerUpdate{Trust: floatPtr(0.9)})
	require.NoError(t, err)

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusAutoApproved, status)
	assert.Equal(t, reasonMoodModerate, reason)
}

func TestClassify_ModerateFallsBackToPendingBelowThreshold(t *testing.T) {
	m, s, tm, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodModerate))
	_, err := tm.AddOrUpdate(ctx, "did:wba:example.com:bob", trust.PeerUpdate{Trust: floatPtr(0.9)})
	require.NoError(t, err)

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusPendingHumanReview, status)
	assert.Equal(t, reasonMoodModerate, reason)
}

func TestClassify_AbsentDefaultsToPending(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	status, reason, err := m.classify(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	assert.Equal(t, message.StatusPendingHumanReview, status)
	assert.Equal(t, reasonDefault, reason)
}

func TestEnqueueInbound_RejectedMessagePersistsAndEmits(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodDND))

	var events []string
	m.Subscribe(func(eventType string, data map[string]interface{}) { events = append(events, eventType) })

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	threadID, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)

	thread, err := s.ReadThread(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, string(message.StatusRejected), thread[0]["status"])
	assert.Equal(t, 0, m.PendingCount())
	assert.Contains(t, events, "rejected")
}

func TestEnqueueInbound_PendingAddsToPendingMapAndChannel(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	threadID, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, 1, m.PendingCount())
	assert.Equal(t, 1, m.QSizeInbound())
	_, ok := m.GetPending(threadID)
	assert.True(t, ok)
}

func TestProcessInbound_PendingMessageGeneratesProposalAndEmitsReviewReady(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	var events []string
	m.Subscribe(func(eventType string, data map[string]interface{}) { events = append(events, eventType) })

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	threadID, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)

	rec := <-m.inbound
	require.NoError(t, m.processInbound(ctx, rec))

	pending, ok := m.GetPending(threadID)
	require.True(t, ok)
	assert.Equal(t, "a considered reply", pending["proposed_reply"])
	assert.Contains(t, events, "agent_thinking")
	assert.Contains(t, events, "review_ready")

	thread, err := s.ReadThread(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "a considered reply", thread[0]["proposed_reply"])
}

func TestProcessInbound_AutoApprovedCallsApproveAndEmitsAutoApproved(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAvailable))
	require.NoError(t, s.SetAutoApprove(ctx, true))

	var events []string
	m.Subscribe(func(eventType string, data map[string]interface{}) { events = append(events, eventType) })

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	_, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)

	rec := <-m.inbound
	require.NoError(t, m.processInbound(ctx, rec))

	assert.Equal(t, 0, m.PendingCount())
	assert.Contains(t, events, "auto_approved")
	assert.Equal(t, 1, m.QSizeOutbound())
}

func TestProcessInbound_PeerIntroMergesGossipWithoutGeneratingReply(t *testing.T) {
	m, _, tm, _ := newTestManager(t, nil)
	ctx := context.Background()

	rec := map[string]interface{}{
		"thread_id":   "t1",
		"type":        string(message.PeerIntro),
		"from_did":    "did:wba:example.com:bob",
		"known_peers": []interface{}{"did:wba:example.com:carol"},
	}
	require.NoError(t, m.processInbound(ctx, rec))

	peer, err := tm.GetPeer(ctx, "did:wba:example.com:bob")
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, 1, peer.MessageCount)

	carol, err := tm.GetPeer(ctx, "did:wba:example.com:carol")
	require.NoError(t, err)
	require.NotNil(t, carol)
}

func TestApprove_LogsCorrectionAndQueuesOutbound(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	threadID, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)
	rec := <-m.inbound
	require.NoError(t, m.processInbound(ctx, rec))

	edited := "Hola Bob"
	approved, err := m.Approve(ctx, threadID, &edited)
	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, "Hola Bob", approved["content"])
	assert.Equal(t, string(message.StatusApproved), approved["status"])
	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, 1, m.QSizeOutbound())

	corrections, err := s.ReadCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, "a considered reply", corrections[0].Original)
	assert.Equal(t, "Hola Bob", corrections[0].Edited)
}

func TestApprove_UnknownThreadReturnsNil(t *testing.T) {
	m, _, _, _ := newTestManager(t, nil)
	approved, err := m.Approve(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, approved)
}

func TestApprove_TriggersPatternExtractionOnFifthCorrection(t *testing.T) {
	calls := 0
	m, s, _, _ := newTestManager(t, func() (int, error) {
		calls++
		return 1, nil
	})
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	var mu sync.Mutex
	var extracted []string
	m.Subscribe(func(eventType string, data map[string]interface{}) {
		if eventType == "patterns_updated" {
			mu.Lock()
			extracted = append(extracted, eventType)
			mu.Unlock()
		}
	})

	for i := 0; i < patternExtractionEvery; i++ {
		msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
		threadID, err := m.EnqueueInbound(ctx, msg)
		require.NoError(t, err)
		rec := <-m.inbound
		require.NoError(t, m.processInbound(ctx, rec))
		edited := "edit"
		_, err = m.Approve(ctx, threadID, &edited)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(extracted) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestReject_RemovesFromPendingAndMarksRejected(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetMood(ctx, store.MoodAbsent))

	msg := message.New(message.ThreadMessage, "did:wba:example.com:bob", m.self.DID(), "hola")
	threadID, err := m.EnqueueInbound(ctx, msg)
	require.NoError(t, err)

	require.NoError(t, m.Reject(ctx, threadID))
	assert.Equal(t, 0, m.PendingCount())

	thread, err := s.ReadThread(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, string(message.StatusRejected), thread[0]["status"])
}

func TestRestorePending_RestoresFromDisk(t *testing.T) {
	m, s, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, s.AppendToThread(ctx, "t1", map[string]interface{}{
		"thread_id": "t1", "status": string(message.StatusPendingHumanReview),
	}))
	require.NoError(t, s.AppendToThread(ctx, "t2", map[string]interface{}{
		"thread_id": "t2", "status": string(message.StatusSent),
	}))

	require.NoError(t, m.RestorePending(ctx))
	assert.Equal(t, 1, m.PendingCount())
	_, ok := m.GetPending("t1")
	assert.True(t, ok)
	_, ok = m.GetPending("t2")
	assert.False(t, ok)
}

func TestBuildHistory_MapsRolesBySelfDID(t *testing.T) {
	selfDID := "did:wba:example.com:ada"
	messages := []map[string]interface{}{
		{"from_did": "did:wba:example.com:bob", "content": "hi"},
		{"from_did": selfDID, "content": "hello back"},
	}

	turns := buildHistory(messages, selfDID)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestBuildHistory_TruncatesToHistoryLimit(t *testing.T) {
	messages := make([]map[string]interface{}, 0, historyLimit+5)
	for i := 0; i < historyLimit+5; i++ {
		messages = append(messages, map[string]interface{}{"from_did": "did:wba:example.com:bob", "content": "x"})
	}
	turns := buildHistory(messages, "did:wba:example.com:ada")
	assert.Len(t, turns, historyLimit)
}

func floatPtr(v float64) *float64 { return &v }
