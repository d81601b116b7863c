package toolsurface

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"chronicle/internal/backfill"
	"chronicle/internal/config"
	"chronicle/internal/embedclient"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/learn"
	"chronicle/internal/orchestrator"
	"chronicle/internal/projectmap"
	"chronicle/internal/reprocess"
	"chronicle/internal/search"
	"chronicle/internal/store"
)

type fakeSessions struct {
	sessions []orchestrator.Session
}

func (f *fakeSessions) ListSessions(context.Context) ([]orchestrator.Session, error) {
	return f.sessions, nil
}

func newTestSurface(t *testing.T) (*Surface, *store.Adapter) {
	t.Helper()
	cfg := config.Default()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	pipe := enrich.New(enrich.DefaultTopicLexicon(), enrich.DefaultSolutionPatterns(), nil, nil)
	bf := &backfill.Backfill{Store: st, Pipeline: pipe}
	learner := learn.New(st, cfg.Learner)
	searcher := &search.Searcher{Store: st, Learner: learner, Ranking: cfg.Ranking, Now: func() time.Time { return time.Unix(1735689700, 0) }}
	orch := &orchestrator.Orchestrator{
		Store:    st,
		Pipeline: pipe,
		Projects: &projectmap.Map{},
		Backfill: bf,
	}
	reproc := &reprocess.Reprocessor{Store: st, Pipeline: pipe, Backfill: bf, BackupDir: t.TempDir()}

	meter := sdkmetric.NewMeterProvider().Meter("chronicle-test")
	monitor, err := NewMonitor(meter)
	require.NoError(t, err)

	return &Surface{
		Store:        st,
		Searcher:     searcher,
		Orchestrator: orch,
		Backfill:     bf,
		Learner:      learner,
		Reprocessor:  reproc,
		Pipeline:     pipe,
		Projects:     &projectmap.Map{},
		Cache:        NewCache(CacheConfig{MaxEntries: 100, TTL: time.Minute}),
		Monitor:      monitor,
		Deadline:     5 * time.Second,
	}, st
}

func TestSurface_SearchCachesSecondCall(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	e := entry.NewSkeleton("s1", 1, entry.TypeAssistant, "run docker compose up to deploy", "2026-01-01T00:00:00Z", 1735689600)
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e}))

	req := search.Request{Query: "deploy with docker compose", Mode: search.ModeSemantic, Limit: 5}
	first, err := s.Search(ctx, req)
	require.NoError(t, err)

	_, missesBefore := s.Cache.Stats()
	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	hitsAfter, missesAfter := s.Cache.Stats()

	assert.Equal(t, first, second)
	assert.Greater(t, hitsAfter, int64(0))
	assert.Equal(t, missesBefore, missesAfter)
}

func TestSurface_WriteOperationInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	e := entry.NewSkeleton("s1", 1, entry.TypeAssistant, "run docker compose up to deploy", "2026-01-01T00:00:00Z", 1735689600)
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e}))

	_, err := s.Search(ctx, search.Request{Query: "deploy", Mode: search.ModeSemantic, Limit: 5})
	require.NoError(t, err)
	assert.Greater(t, s.Cache.Size(), 0)

	_, err = s.BackfillConversationChains(ctx, BackfillRequest{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Cache.Size())
}

func TestSurface_GetConversationContextChainRequiresMessageID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)

	_, err := s.GetConversationContextChain(ctx, ContextChainRequest{})
	require.Error(t, err)
}

func TestSurface_ForceConversationSyncUsesSessionSource(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	content := `{"role":"user","text":"hello there","timestamp":"2026-01-01T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	s.Sessions = &fakeSessions{sessions: []orchestrator.Session{{ID: "s1", LogPath: path, WorkingDir: "/tmp"}}}

	resp, err := s.ForceConversationSync(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Orchestrator.Sessions, 1)
	assert.NoError(t, resp.Orchestrator.Sessions[0].Err)
}

func TestSurface_ForceConversationSyncWithoutSessionSourceIsDegraded(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)

	_, err := s.ForceConversationSync(ctx)
	require.Error(t, err)
}

func TestSurface_ProcessFeedbackUnifiedUpdatesLearner(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	sol := entry.NewSkeleton("s1", 1, entry.TypeAssistant, "run go build ./... to fix it", "2026-01-01T00:00:00Z", 1735689600)
	sol.IsSolutionAttempt = true
	sol.SolutionQualityScore = 1.0
	sol.ProjectName = "chronicle"
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{sol}))

	resp, err := s.ProcessFeedbackUnified(ctx, FeedbackRequest{
		FeedbackText:   "thanks that worked perfectly",
		SolutionID:     sol.ID,
		ProcessingMode: "default",
	})
	require.NoError(t, err)
	assert.Greater(t, resp.Report.NewQualityScore, resp.Report.OldQualityScore)
}

func TestSurface_ProcessFeedbackUnifiedMissingSolutionIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)

	_, err := s.ProcessFeedbackUnified(ctx, FeedbackRequest{FeedbackText: "thanks", SolutionID: "nope"})
	require.Error(t, err)
}

func TestSurface_SmartMetadataSyncStatusReportsCoverage(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	enriched := entry.NewSkeleton("s1", 1, entry.TypeUser, "hello", "2026-01-01T00:00:00Z", 1735689600)
	enriched.DetectedTopics = map[string]float64{}
	unenriched := entry.NewSkeleton("s1", 2, entry.TypeUser, "world", "2026-01-01T00:01:00Z", 1735689660)
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{enriched, unenriched}))

	resp, err := s.SmartMetadataSyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalEntries)
	assert.Equal(t, 1, resp.EnrichedEntries)
	assert.InDelta(t, 50.0, resp.CoveragePercent, 1e-9)
}

func TestSurface_DetectCurrentProjectReportsConfidence(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)

	resp, err := s.DetectCurrentProject(ctx, DetectProjectRequest{WorkingDir: "/home/user/myproject"})
	require.NoError(t, err)
	assert.Equal(t, "myproject", resp.ProjectName)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestSurface_GetProjectContextSummaryAggregatesQuality(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	e1 := entry.NewSkeleton("s1", 1, entry.TypeAssistant, "fix 1", "2026-01-01T00:00:00Z", 1735689600)
	e1.ProjectName = "proj"
	e1.IsSolutionAttempt = true
	e1.SolutionQualityScore = 1.5
	e2 := entry.NewSkeleton("s1", 2, entry.TypeAssistant, "fix 2", "2026-01-01T00:01:00Z", 1735689660)
	e2.ProjectName = "proj"
	e2.IsSolutionAttempt = true
	e2.SolutionQualityScore = 0.5
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e1, e2}))

	resp, err := s.GetProjectContextSummary(ctx, ProjectSummaryRequest{ProjectName: "proj"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalEntries)
	assert.Equal(t, 2, resp.SolutionAttempts)
	assert.InDelta(t, 1.0, resp.MeanQualityScore, 1e-9)
}

func TestSurface_ForceDatabaseConnectionRefreshReportsRowCount(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)
	e := entry.NewSkeleton("s1", 1, entry.TypeUser, "hello", "2026-01-01T00:00:00Z", 1735689600)
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e}))

	resp, err := s.ForceDatabaseConnectionRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, 1, resp.RowCount)
}

type fakeAnalyticsSink struct {
	mu   sync.Mutex
	recs []string
}

func (f *fakeAnalyticsSink) Record(_ context.Context, operation string, _ time.Duration, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, operation)
}

func (f *fakeAnalyticsSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func TestSurface_RecordsEveryCallToAnalyticsSink(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSurface(t)
	sink := &fakeAnalyticsSink{}
	s.Analytics = sink

	_, err := s.ForceDatabaseConnectionRefresh(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 10*time.Millisecond)
}
