package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestReadIdentity_MissingIsHardError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadIdentity(context.Background())
	assert.Error(t, err)
}

func TestWriteReadIdentity_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	record := IdentityRecord{ID: "did:wba:example.com:alice", DisplayName: "Alice"}
	require.NoError(t, s.WriteIdentity(ctx, record))

	got, err := s.ReadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestReadIdentity_FallsBackToDIDDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(s.Root, "did.json"), []byte(`{"id":"did:wba:example.com:bob"}`), 0644))

	got, err := s.ReadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "did:wba:example.com:bob", got.ID)
}

func TestPatterns_EmptyWhenMissing(t *testing.T) {
	s := newTestStore(t)
	patterns, err := s.ReadPatterns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestAddPattern_DeduplicatesByDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddPattern(ctx, Pattern{Description: "Prefers terse replies", Confidence: 0.5}))
	require.NoError(t, s.AddPattern(ctx, Pattern{Description: "prefers terse replies", Confidence: 0.9}))

	patterns, err := s.ReadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 0.9, patterns[0].Confidence)
}

func TestContext_EmptyWhenMissing(t *testing.T) {
	s := newTestStore(t)
	content, err := s.ReadContext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestAppendContext_AddsSection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendContext(ctx, "Preferences", "Likes concise answers."))

	content, err := s.ReadContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "## Preferences")
	assert.Contains(t, content, "Likes concise answers.")
}

func TestCorrections_AppendAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCorrection(ctx, Correction{Original: "a", Edited: "b", ThreadID: "t1"}))
	require.NoError(t, s.AppendCorrection(ctx, Correction{Original: "c", Edited: "d", ThreadID: "t2"}))

	corrections, err := s.ReadCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, corrections, 2)
	assert.Equal(t, "a", corrections[0].Original)
	assert.Equal(t, "d", corrections[1].Edited)
	assert.NotEmpty(t, corrections[0].Timestamp)
}

func TestPeers_UpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPeer(ctx, Peer{DID: "did:wba:x:one", Trust: 0.5}))
	require.NoError(t, s.UpsertPeer(ctx, Peer{DID: "did:wba:x:one", Trust: 0.7}))
	require.NoError(t, s.UpsertPeer(ctx, Peer{DID: "did:wba:x:two", Trust: 0.3}))

	peers, err := s.ReadPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	for _, p := range peers {
		if p.DID == "did:wba:x:one" {
			assert.Equal(t, 0.7, p.Trust)
		}
	}

	require.NoError(t, s.DeletePeer(ctx, "did:wba:x:one"))
	peers, err = s.ReadPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "did:wba:x:two", peers[0].DID)
}

func TestBudget_DefaultsWhenMissing(t *testing.T) {
	s := newTestStore(t)
	budget, err := s.ReadBudget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), budget.MonthlyLimitTokens)
	assert.Equal(t, MoodModerate, budget.Mood)
}

func TestRecordUsage_AccumulatesAndBudgetCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	budget, err := s.ReadBudget(ctx)
	require.NoError(t, err)
	budget.MonthlyLimitTokens = 100
	require.NoError(t, s.WriteBudget(ctx, budget))

	require.NoError(t, s.RecordUsage(ctx, 60))
	over, err := s.IsOverBudget(ctx)
	require.NoError(t, err)
	assert.False(t, over)

	require.NoError(t, s.RecordUsage(ctx, 60))
	over, err = s.IsOverBudget(ctx)
	require.NoError(t, err)
	assert.True(t, over)

	budget, err = s.ReadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), budget.UsedTokens)
	assert.Equal(t, int64(2), budget.CallsTotal)
}

func TestReadBudget_ResetsAcrossMonthBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	budget, err := s.ReadBudget(ctx)
	require.NoError(t, err)
	budget.UsedTokens = 400
	budget.CallsTotal = 5
	// One second before the start of the current UTC month; AddDate(0, -1, 0)
	// on a 31st can normalize back into the current month.
	monthStart := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	budget.LastReset = monthStart.Add(-time.Second).Format(time.RFC3339)
	require.NoError(t, s.WriteBudget(ctx, budget))

	got, err := s.ReadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsedTokens)
	assert.Equal(t, int64(0), got.CallsTotal)
}

func TestMood_GetSetAndValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mood, err := s.GetMood(ctx)
	require.NoError(t, err)
	assert.Equal(t, MoodModerate, mood)

	require.NoError(t, s.SetMood(ctx, MoodDND))
	mood, err = s.GetMood(ctx)
	require.NoError(t, err)
	assert.Equal(t, MoodDND, mood)

	err = s.SetMood(ctx, "furious")
	require.Error(t, err)
	var invalidMood *ErrInvalidMood
	assert.ErrorAs(t, err, &invalidMood)
}

func TestAutoApprove_GetSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enabled, err := s.GetAutoApprove(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, s.SetAutoApprove(ctx, true))
	enabled, err = s.GetAutoApprove(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestThreads_AppendListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendToThread(ctx, "thread-1", map[string]interface{}{"content": "hi"}))
	require.NoError(t, s.AppendToThread(ctx, "thread-1", map[string]interface{}{"content": "there"}))
	require.NoError(t, s.AppendToThread(ctx, "thread-2", map[string]interface{}{"content": "hey"}))

	messages, err := s.ReadThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0]["content"])

	ids, err := s.ListThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"thread-1", "thread-2"}, ids)

	require.NoError(t, s.DeleteThread(ctx, "thread-1"))
	ids, err = s.ListThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"thread-2"}, ids)
}

func TestReadThread_EmptyWhenMissing(t *testing.T) {
	s := newTestStore(t)
	messages, err := s.ReadThread(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCountHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCorrection(ctx, Correction{Original: "a", Edited: "b"}))
	require.NoError(t, s.AddPattern(ctx, Pattern{Description: "p1"}))
	require.NoError(t, s.WriteContext(ctx, "one two three"))

	corrections, err := s.CorrectionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrections)

	patterns, err := s.PatternCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, patterns)

	words, err := s.ContextWordCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, words)
}

func TestClose_IsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Close())
}

func TestFileStoreSatisfiesMaturityDataSource(t *testing.T) {
	s := newTestStore(t)
	var _ interface {
		CorrectionCount(ctx context.Context) (int, error)
		PatternCount(ctx context.Context) (int, error)
		ContextWordCount(ctx context.Context) (int, error)
	} = s
}
