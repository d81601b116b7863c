package learn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/config"
	"chronicle/internal/embedclient"
	"chronicle/internal/entry"
	"chronicle/internal/store"
)

func newLearner(t *testing.T, st *store.Adapter) *Learner {
	t.Helper()
	cfg := config.Default().Learner
	return New(st, cfg)
}

func seedSolution(t *testing.T, st *store.Adapter) entry.ConversationEntry {
	t.Helper()
	ctx := context.Background()
	e := entry.NewSkeleton("s1", 1, entry.TypeAssistant, "run go build to fix it", "2026-01-01T00:00:00Z", 1735689600)
	e.IsSolutionAttempt = true
	e.SolutionQualityScore = 1.0
	e.ProjectName = "chronicle"
	e.SolutionCategory = "build_fix"
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e}))
	return e
}

func TestObserve_PositiveFeedbackRaisesScore(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	l := newLearner(t, st)
	sol := seedSolution(t, st)

	report, err := l.Observe(ctx, sol, entry.SentimentPositive, 1.0)
	require.NoError(t, err)
	assert.Greater(t, report.NewQualityScore, report.OldQualityScore)

	got, err := st.Get(ctx, []string{sol.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, report.NewQualityScore, got[0].SolutionQualityScore, 1e-9)
}

func TestObserve_NegativeFeedbackLowersScore(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	l := newLearner(t, st)
	sol := seedSolution(t, st)

	report, err := l.Observe(ctx, sol, entry.SentimentNegative, 1.0)
	require.NoError(t, err)
	assert.Less(t, report.NewQualityScore, report.OldQualityScore)
}

func TestObserve_ScoreClampedToCeilAndFloor(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	l := newLearner(t, st)
	sol := seedSolution(t, st)

	for i := 0; i < 50; i++ {
		var err error
		sol, err = refetch(ctx, st, sol.ID)
		require.NoError(t, err)
		_, err = l.Observe(ctx, sol, entry.SentimentPositive, 1.0)
		require.NoError(t, err)
	}
	got, err := refetch(ctx, st, sol.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.SolutionQualityScore, l.Config.QualityCeil)

	for i := 0; i < 50; i++ {
		var err error
		sol, err = refetch(ctx, st, sol.ID)
		require.NoError(t, err)
		_, err = l.Observe(ctx, sol, entry.SentimentNegative, 1.0)
		require.NoError(t, err)
	}
	got, err = refetch(ctx, st, sol.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.SolutionQualityScore, l.Config.QualityFloor)
}

func TestObserve_UpdatesProjectTopicStats(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	l := newLearner(t, st)
	sol := seedSolution(t, st)

	_, err := l.Observe(ctx, sol, entry.SentimentPositive, 0.8)
	require.NoError(t, err)

	stats := l.StatsFor("chronicle", "build_fix")
	assert.Equal(t, 1, stats.PositiveCount)
	assert.InDelta(t, 0.8, stats.MeanStrength, 1e-9)
	assert.Greater(t, stats.ValidationBoost(), 1.0)
}

func TestStatsFor_UnseenPairIsNeutral(t *testing.T) {
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	l := newLearner(t, st)
	stats := l.StatsFor("nope", "nope")
	assert.Equal(t, 1.0, stats.ValidationBoost())
}

func refetch(ctx context.Context, st *store.Adapter, id string) (entry.ConversationEntry, error) {
	got, err := st.Get(ctx, []string{id})
	if err != nil {
		return entry.ConversationEntry{}, err
	}
	if len(got) == 0 {
		return entry.ConversationEntry{}, assertNotFound(id)
	}
	return got[0], nil
}

func assertNotFound(id string) error {
	return &notFoundErr{id: id}
}

type notFoundErr struct{ id string }

func (e *notFoundErr) Error() string { return "not found: " + e.id }
