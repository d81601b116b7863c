package backfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/embedclient"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/store"
)

func newBackfill(st *store.Adapter) *Backfill {
	return &Backfill{
		Store:    st,
		Pipeline: enrich.New(enrich.DefaultTopicLexicon(), enrich.DefaultSolutionPatterns(), nil, nil),
	}
}

func seedSession(t *testing.T, st *store.Adapter, sessionID string) []entry.ConversationEntry {
	t.Helper()
	ctx := context.Background()
	e1 := entry.NewSkeleton(sessionID, 1, entry.TypeUser, "how do I fix this crash", "2026-01-01T00:00:00Z", 1735689600)
	e2 := entry.NewSkeleton(sessionID, 2, entry.TypeAssistant, "run go build ./... to fix it, here's the command", "2026-01-01T00:00:10Z", 1735689610)
	e2.IsSolutionAttempt = true
	e2.DetectedTopics = map[string]float64{}
	e3 := entry.NewSkeleton(sessionID, 3, entry.TypeUser, "thanks that worked perfectly", "2026-01-01T00:00:20Z", 1735689620)
	e1.DetectedTopics = map[string]float64{}
	e3.DetectedTopics = map[string]float64{}
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e1, e2, e3}))
	return []entry.ConversationEntry{e1, e2, e3}
}

func TestBackfill_LinksPreviousAndNext(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	seeded := seedSession(t, st, "s1")
	b := newBackfill(st)

	report, err := b.Run(ctx, []string{"s1"})
	require.NoError(t, err)
	require.Len(t, report.Sessions, 1)
	assert.NoError(t, report.Sessions[0].Err)

	got, err := st.Get(ctx, []string{seeded[1].ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, seeded[0].ID, got[0].PreviousMessageID)
	assert.Equal(t, seeded[2].ID, got[0].NextMessageID)
}

func TestBackfill_PairsPositiveFeedbackWithSolution(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	seeded := seedSession(t, st, "s1")
	b := newBackfill(st)

	report, err := b.Run(ctx, []string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sessions[0].PairsFormed)

	solution, err := st.Get(ctx, []string{seeded[1].ID})
	require.NoError(t, err)
	feedback, err := st.Get(ctx, []string{seeded[2].ID})
	require.NoError(t, err)
	require.Len(t, solution, 1)
	require.Len(t, feedback, 1)
	assert.Equal(t, feedback[0].ID, solution[0].FeedbackMessageID)
	assert.Equal(t, solution[0].ID, feedback[0].RelatedSolutionID)
	assert.True(t, feedback[0].IsFeedbackToSolution)
}

func TestBackfill_IdempotentOnSecondRun(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	seedSession(t, st, "s1")
	b := newBackfill(st)

	_, err := b.Run(ctx, []string{"s1"})
	require.NoError(t, err)
	first, err := st.GetWhere(ctx, map[string]string{"session_id": "s1"}, 0)
	require.NoError(t, err)

	_, err = b.Run(ctx, []string{"s1"})
	require.NoError(t, err)
	second, err := st.GetWhere(ctx, map[string]string{"session_id": "s1"}, 0)
	require.NoError(t, err)

	byID := func(es []entry.ConversationEntry) map[string]entry.ConversationEntry {
		m := make(map[string]entry.ConversationEntry, len(es))
		for _, e := range es {
			m[e.ID] = e
		}
		return m
	}
	firstMap, secondMap := byID(first), byID(second)
	for id, e := range firstMap {
		other := secondMap[id]
		assert.Equal(t, e.PreviousMessageID, other.PreviousMessageID)
		assert.Equal(t, e.NextMessageID, other.NextMessageID)
		assert.Equal(t, e.FeedbackMessageID, other.FeedbackMessageID)
		assert.Equal(t, e.RelatedSolutionID, other.RelatedSolutionID)
	}
}

func TestBackfill_NoSessionEntriesIsNoop(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	b := newBackfill(st)

	report, err := b.Run(ctx, []string{"missing-session"})
	require.NoError(t, err)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, 0, report.Sessions[0].EntriesLinked)
}
