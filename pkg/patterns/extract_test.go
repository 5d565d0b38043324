package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
)

func seedCorrections(t *testing.T, s store.Store, pairs [][2]string) {
	t.Helper()
	for _, pair := range pairs {
		require.NoError(t, s.AppendCorrection(context.Background(), store.Correction{
			Original: pair[0],
			Edited:   pair[1],
			ThreadID: "t1",
			FromDID:  "did:wba:example.com:bob",
		}))
	}
}

func TestExtract_NoCorrectionsReturnsZero(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	added, err := Extract(context.Background(), s, provider.NewMockProvider("[]"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtract_SkipsWhenNoMeaningfulEdits(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedCorrections(t, s, [][2]string{{"same", "same"}, {"", "also empty original"}})

	added, err := Extract(context.Background(), s, provider.NewMockProvider("[]"), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtract_ParsesProviderPatternsAndDedupes(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedCorrections(t, s, [][2]string{{"Sure, here's everything.", "Let's keep this brief."}})

	reply := `[{"description":"Prefers brevity","examples":["Sure -> brief"],"confidence":0.8}]`
	added, err := Extract(context.Background(), s, provider.NewMockProvider(reply), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	patterns, err := s.ReadPatterns(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Prefers brevity", patterns[0].Description)

	// Re-running with the same pattern description must not duplicate it.
	added, err = Extract(context.Background(), s, provider.NewMockProvider(reply), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtract_StripsMarkdownCodeFence(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedCorrections(t, s, [][2]string{{"original text", "edited text"}})

	reply := "```json\n[{\"description\":\"Trims filler words\",\"confidence\":0.6}]\n```"
	added, err := Extract(context.Background(), s, provider.NewMockProvider(reply), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestExtract_MalformedResponseYieldsZeroNotError(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedCorrections(t, s, [][2]string{{"original text", "edited text"}})

	added, err := Extract(context.Background(), s, provider.NewMockProvider("not json"), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtract_WindowLimitsToMostRecent(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedCorrections(t, s, [][2]string{
		{"a1", "a2"},
		{"b1", "b2"},
		{"c1", "c2"},
	})

	var seenPrompt string
	mp := provider.NewMockProvider("[]")
	mp.ReplyFunc = func(system string, history []provider.Turn) string {
		if len(history) > 0 {
			seenPrompt = history[0].Content
		}
		return "[]"
	}

	_, err = Extract(context.Background(), s, mp, 1)
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, "c1")
	assert.NotContains(t, seenPrompt, "a1")
}
