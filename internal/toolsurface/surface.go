// Package toolsurface implements C10: the fixed, versioned set of tool
// operations external callers invoke, wrapped in a result cache and a
// call monitor. Every operation takes a typed request and returns a
// typed response; validation failures and store-unavailable conditions
// are reported through chronicleerr rather than a bare Go error
// crossing the tool boundary.
package toolsurface

import (
	"context"
	"time"

	"chronicle/internal/backfill"
	"chronicle/internal/chronicleerr"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/learn"
	"chronicle/internal/orchestrator"
	"chronicle/internal/projectmap"
	"chronicle/internal/reprocess"
	"chronicle/internal/search"
	"chronicle/internal/store"
)

// Logger is the narrow logging seam Surface reports through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// SessionSource discovers the sessions a whole-store operation
// (force_conversation_sync, backfill_conversation_chains with no
// session_id) should cover. The host owns session discovery — it knows
// where logs live and which working directory produced each one — so
// Surface only consumes the list.
type SessionSource interface {
	ListSessions(ctx context.Context) ([]orchestrator.Session, error)
}

// Surface wires every C1-C9/C11 component together behind the fixed
// C10 tool set.
type Surface struct {
	Store        *store.Adapter
	Searcher     *search.Searcher
	Orchestrator *orchestrator.Orchestrator
	Backfill     *backfill.Backfill
	Learner      *learn.Learner
	Reprocessor  *reprocess.Reprocessor
	Pipeline     *enrich.Pipeline
	Projects     *projectmap.Map
	Sessions     SessionSource
	Cache        *Cache
	Monitor      *Monitor
	Invalidator  Invalidator
	Analytics    AnalyticsSink
	Deadline     time.Duration
	Logger       Logger
}

func (s *Surface) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.Deadline
	if d <= 0 {
		d = 20 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// cached runs a read-only operation through the cache, keyed on
// operation name plus params. Only a nil-error result is cached.
func cached[T any](s *Surface, ctx context.Context, operation string, params any, fn func(context.Context) (T, error)) (T, error) {
	key := Key(operation, params)
	if s.Cache != nil {
		if v, ok := s.Cache.Get(key); ok {
			return v.(T), nil
		}
	}
	var result T
	err := s.monitored(ctx, operation, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	if err == nil && s.Cache != nil {
		s.Cache.Set(key, result)
	}
	return result, err
}

func (s *Surface) monitored(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	start := time.Now()
	var err error
	if s.Monitor == nil {
		err = fn(ctx)
	} else {
		err = s.Monitor.Call(ctx, operation, func() error { return fn(ctx) })
	}

	if s.Analytics != nil {
		go s.Analytics.Record(context.Background(), operation, time.Since(start), err)
	}
	return err
}

// invalidatingWrite runs a write-shaped operation; on success it clears
// the cache, since any write can change results the cache has memoized.
func (s *Surface) invalidatingWrite(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := s.monitored(ctx, operation, fn)
	if err == nil && s.Cache != nil {
		s.Cache.Clear()
		if s.Invalidator != nil {
			if pubErr := s.Invalidator.Publish(ctx); pubErr != nil && s.Logger != nil {
				s.Logger.Warn("cache invalidation broadcast failed", map[string]any{"operation": operation, "error": pubErr.Error()})
			}
		}
	}
	return err
}

// ---- search_conversations_unified ----

// SearchResponse aliases search.Response for the tool boundary.
type SearchResponse = search.Response

// Search implements search_conversations_unified.
func (s *Surface) Search(ctx context.Context, req search.Request) (SearchResponse, error) {
	return cached(s, ctx, "search_conversations_unified", req, func(ctx context.Context) (search.Response, error) {
		return s.Searcher.Search(ctx, req)
	})
}

// ---- get_conversation_context_chain ----

// ContextChainRequest is get_conversation_context_chain's input.
type ContextChainRequest struct {
	MessageID   string
	ChainLength int
}

// ContextChainResponse is get_conversation_context_chain's output.
type ContextChainResponse struct {
	Anchor entry.ConversationEntry
	Chain  []search.ChainEntry
}

// GetConversationContextChain implements get_conversation_context_chain.
func (s *Surface) GetConversationContextChain(ctx context.Context, req ContextChainRequest) (ContextChainResponse, error) {
	if req.MessageID == "" {
		return ContextChainResponse{}, chronicleerr.New(chronicleerr.KindValidationFailed, "missing_message_id",
			"get_conversation_context_chain requires message_id")
	}
	return cached(s, ctx, "get_conversation_context_chain", req, func(ctx context.Context) (ContextChainResponse, error) {
		anchor, chain, err := s.Searcher.GetContextChain(ctx, req.MessageID, req.ChainLength)
		if err != nil {
			return ContextChainResponse{}, err
		}
		return ContextChainResponse{Anchor: anchor, Chain: chain}, nil
	})
}

// ---- force_conversation_sync ----

// ForceSyncResponse is force_conversation_sync's output.
type ForceSyncResponse struct {
	Orchestrator orchestrator.Report
}

// ForceConversationSync implements force_conversation_sync: run C6 (and
// through it, C7) over every session the host reports.
func (s *Surface) ForceConversationSync(ctx context.Context) (ForceSyncResponse, error) {
	var out ForceSyncResponse
	err := s.invalidatingWrite(ctx, "force_conversation_sync", func(ctx context.Context) error {
		sessions, err := s.listSessions(ctx)
		if err != nil {
			return err
		}
		report, err := s.Orchestrator.Run(ctx, sessions)
		out.Orchestrator = report
		return err
	})
	return out, err
}

// ---- backfill_conversation_chains ----

// BackfillRequest is backfill_conversation_chains's input.
type BackfillRequest struct {
	SessionID string
	Limit     int
}

// BackfillResponse is backfill_conversation_chains's output.
type BackfillResponse struct {
	Report backfill.Report
}

// BackfillConversationChains implements backfill_conversation_chains.
func (s *Surface) BackfillConversationChains(ctx context.Context, req BackfillRequest) (BackfillResponse, error) {
	var out BackfillResponse
	err := s.invalidatingWrite(ctx, "backfill_conversation_chains", func(ctx context.Context) error {
		ids, err := s.resolveSessionIDs(ctx, req.SessionID, req.Limit)
		if err != nil {
			return err
		}
		report, err := s.Backfill.Run(ctx, ids)
		out.Report = report
		return err
	})
	return out, err
}

// ---- run_unified_enhancement ----

// EnhancementRequest is run_unified_enhancement's input.
type EnhancementRequest struct {
	SessionID           string
	MaxSessions         int
	ForceReprocessFields []string
	CreateBackup        bool
}

// EnhancementResponse is run_unified_enhancement's output: the C7
// report, and if force_reprocess_fields was given, the C11 report too.
type EnhancementResponse struct {
	Backfill   backfill.Report
	Reprocess  *reprocess.Response
}

// RunUnifiedEnhancement implements run_unified_enhancement.
func (s *Surface) RunUnifiedEnhancement(ctx context.Context, req EnhancementRequest) (EnhancementResponse, error) {
	var out EnhancementResponse
	err := s.invalidatingWrite(ctx, "run_unified_enhancement", func(ctx context.Context) error {
		ids, err := s.resolveSessionIDs(ctx, req.SessionID, req.MaxSessions)
		if err != nil {
			return err
		}
		bfReport, err := s.Backfill.Run(ctx, ids)
		out.Backfill = bfReport
		if err != nil {
			return err
		}
		if len(req.ForceReprocessFields) == 0 {
			return nil
		}
		for _, sid := range ids {
			resp, err := s.Reprocessor.Run(ctx, reprocess.Request{
				SessionID:    sid,
				Fields:       req.ForceReprocessFields,
				CreateBackup: req.CreateBackup,
			})
			if err != nil {
				return err
			}
			if out.Reprocess == nil {
				out.Reprocess = &resp
			} else {
				out.Reprocess.EntriesUpdated += resp.EntriesUpdated
				out.Reprocess.SessionsLinked = append(out.Reprocess.SessionsLinked, resp.SessionsLinked...)
			}
		}
		return nil
	})
	return out, err
}

// ---- smart_metadata_sync_status ----

// SyncStatusResponse is smart_metadata_sync_status's output.
type SyncStatusResponse struct {
	TotalEntries     int
	EnrichedEntries  int
	CoveragePercent  float64
}

// SmartMetadataSyncStatus implements smart_metadata_sync_status.
func (s *Surface) SmartMetadataSyncStatus(ctx context.Context) (SyncStatusResponse, error) {
	return cached(s, ctx, "smart_metadata_sync_status", nil, func(ctx context.Context) (SyncStatusResponse, error) {
		entries, err := s.Store.GetWhere(ctx, map[string]string{}, 0)
		if err != nil {
			return SyncStatusResponse{}, chronicleerr.Wrap(chronicleerr.KindStoreUnavailable, "store_read_failed",
				"could not enumerate entries", err)
		}
		enriched := 0
		for _, e := range entries {
			if orchestrator.HasEnrichmentMarkers(e) {
				enriched++
			}
		}
		pct := 0.0
		if len(entries) > 0 {
			pct = float64(enriched) / float64(len(entries)) * 100.0
		}
		return SyncStatusResponse{TotalEntries: len(entries), EnrichedEntries: enriched, CoveragePercent: pct}, nil
	})
}

// ---- process_feedback_unified ----

// FeedbackRequest is process_feedback_unified's input. SolutionID names
// the stored solution entry the feedback applies to.
type FeedbackRequest struct {
	FeedbackText   string
	SolutionID     string
	ProcessingMode string
}

// FeedbackResponse is process_feedback_unified's output.
type FeedbackResponse struct {
	Report learn.Report
}

// ProcessFeedbackUnified implements process_feedback_unified.
func (s *Surface) ProcessFeedbackUnified(ctx context.Context, req FeedbackRequest) (FeedbackResponse, error) {
	if req.FeedbackText == "" || req.SolutionID == "" {
		return FeedbackResponse{}, chronicleerr.New(chronicleerr.KindValidationFailed, "missing_feedback_fields",
			"process_feedback_unified requires feedback_text and solution_context")
	}
	var out FeedbackResponse
	err := s.invalidatingWrite(ctx, "process_feedback_unified", func(ctx context.Context) error {
		got, err := s.Store.Get(ctx, []string{req.SolutionID})
		if err != nil || len(got) == 0 {
			return chronicleerr.New(chronicleerr.KindNotFound, "solution_not_found",
				"no solution entry with that solution_context id")
		}
		sentiment, strength := s.Pipeline.ClassifyFeedbackStandalone(req.FeedbackText)
		report, err := s.Learner.Observe(ctx, got[0], sentiment, strength)
		out.Report = report
		return err
	})
	return out, err
}

// ---- get_learning_insights ----

// LearningInsightsRequest is get_learning_insights's input.
type LearningInsightsRequest struct {
	InsightType string
	TimeRange   string
}

// LearningInsightsResponse is get_learning_insights's output.
type LearningInsightsResponse struct {
	Insights []learn.Insight
}

// GetLearningInsights implements get_learning_insights.
func (s *Surface) GetLearningInsights(ctx context.Context, req LearningInsightsRequest) (LearningInsightsResponse, error) {
	return cached(s, ctx, "get_learning_insights", req, func(ctx context.Context) (LearningInsightsResponse, error) {
		return LearningInsightsResponse{Insights: s.Learner.All()}, nil
	})
}

// ---- get_system_status ----

// SystemStatusRequest is get_system_status's input.
type SystemStatusRequest struct {
	StatusType string
	Format     string
}

// SystemStatusResponse is get_system_status's output.
type SystemStatusResponse struct {
	StoreReachable bool
	StoreCount     int
	CacheSize      int
	CacheHits      int64
	CacheMisses    int64
	Operations     []OperationStats
}

// GetSystemStatus implements get_system_status.
func (s *Surface) GetSystemStatus(ctx context.Context, req SystemStatusRequest) (SystemStatusResponse, error) {
	var out SystemStatusResponse
	err := s.monitored(ctx, "get_system_status", func(ctx context.Context) error {
		n, err := s.Store.Count(ctx)
		out.StoreReachable = err == nil
		out.StoreCount = n
		if s.Cache != nil {
			out.CacheSize = s.Cache.Size()
			out.CacheHits, out.CacheMisses = s.Cache.Stats()
		}
		if s.Monitor != nil {
			out.Operations = s.Monitor.Snapshot()
		}
		return nil
	})
	return out, err
}

// ---- get_performance_analytics_dashboard ----

// PerformanceDashboard is get_performance_analytics_dashboard's output.
type PerformanceDashboard struct {
	Operations  []OperationStats
	CacheHits   int64
	CacheMisses int64
	CacheSize   int
}

// GetPerformanceAnalyticsDashboard implements
// get_performance_analytics_dashboard.
func (s *Surface) GetPerformanceAnalyticsDashboard(ctx context.Context) (PerformanceDashboard, error) {
	var out PerformanceDashboard
	if s.Monitor != nil {
		out.Operations = s.Monitor.Snapshot()
	}
	if s.Cache != nil {
		out.CacheHits, out.CacheMisses = s.Cache.Stats()
		out.CacheSize = s.Cache.Size()
	}
	return out, nil
}

// ---- detect_current_project ----

// DetectProjectRequest is detect_current_project's input.
type DetectProjectRequest struct {
	WorkingDir string
}

// DetectProjectResponse is detect_current_project's output.
type DetectProjectResponse struct {
	ProjectName string
	ProjectPath string
	Confidence  float64
}

// DetectCurrentProject implements detect_current_project.
func (s *Surface) DetectCurrentProject(ctx context.Context, req DetectProjectRequest) (DetectProjectResponse, error) {
	name, path, matched := s.Projects.ResolveWithConfidence(req.WorkingDir)
	confidence := 0.5
	if matched {
		confidence = 1.0
	}
	return DetectProjectResponse{ProjectName: name, ProjectPath: path, Confidence: confidence}, nil
}

// ---- get_project_context_summary ----

// ProjectSummaryRequest is get_project_context_summary's input.
type ProjectSummaryRequest struct {
	ProjectName string
	DaysBack    int
}

// ProjectSummaryResponse is get_project_context_summary's output.
type ProjectSummaryResponse struct {
	ProjectName        string
	TotalEntries       int
	SolutionAttempts   int
	MeanQualityScore   float64
	PositiveFeedback   int
	NegativeFeedback   int
}

// GetProjectContextSummary implements get_project_context_summary.
func (s *Surface) GetProjectContextSummary(ctx context.Context, req ProjectSummaryRequest) (ProjectSummaryResponse, error) {
	return cached(s, ctx, "get_project_context_summary", req, func(ctx context.Context) (ProjectSummaryResponse, error) {
		filter := map[string]string{}
		if req.ProjectName != "" {
			filter["project_name"] = req.ProjectName
		}
		entries, err := s.Store.GetWhere(ctx, filter, 0)
		if err != nil {
			return ProjectSummaryResponse{}, chronicleerr.Wrap(chronicleerr.KindStoreUnavailable, "store_read_failed",
				"could not enumerate project entries", err)
		}
		cutoff := int64(0)
		if req.DaysBack > 0 {
			cutoff = time.Now().Add(-time.Duration(req.DaysBack) * 24 * time.Hour).Unix()
		}
		out := ProjectSummaryResponse{ProjectName: req.ProjectName}
		var qualitySum float64
		for _, e := range entries {
			if cutoff > 0 && e.TimestampUnix < cutoff {
				continue
			}
			out.TotalEntries++
			if e.IsSolutionAttempt {
				out.SolutionAttempts++
				qualitySum += e.SolutionQualityScore
			}
			switch e.UserFeedbackSentiment {
			case entry.SentimentPositive:
				out.PositiveFeedback++
			case entry.SentimentNegative:
				out.NegativeFeedback++
			}
		}
		if out.SolutionAttempts > 0 {
			out.MeanQualityScore = qualitySum / float64(out.SolutionAttempts)
		}
		return out, nil
	})
}

// ---- force_database_connection_refresh ----

// ConnectionRefreshResponse is force_database_connection_refresh's output.
type ConnectionRefreshResponse struct {
	Confirmed bool
	RowCount  int
}

// ForceDatabaseConnectionRefresh implements
// force_database_connection_refresh. The store interface has no
// vendor-specific reconnect hook, so "refresh" means re-establishing
// that the backend still answers and reporting its current row count.
func (s *Surface) ForceDatabaseConnectionRefresh(ctx context.Context) (ConnectionRefreshResponse, error) {
	var out ConnectionRefreshResponse
	err := s.invalidatingWrite(ctx, "force_database_connection_refresh", func(ctx context.Context) error {
		n, err := s.Store.Count(ctx)
		if err != nil {
			return chronicleerr.Wrap(chronicleerr.KindStoreUnavailable, "store_unreachable",
				"database connection refresh failed", err)
		}
		out.Confirmed = true
		out.RowCount = n
		return nil
	})
	return out, err
}

// ---- shared helpers ----

func (s *Surface) listSessions(ctx context.Context) ([]orchestrator.Session, error) {
	if s.Sessions == nil {
		return nil, chronicleerr.New(chronicleerr.KindDegraded, "no_session_source",
			"no session source configured for whole-store operations")
	}
	return s.Sessions.ListSessions(ctx)
}

// resolveSessionIDs returns explicit ID when given, otherwise asks
// Sessions for the full list and caps it at limit (0 = unbounded).
func (s *Surface) resolveSessionIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	if sessionID != "" {
		return []string{sessionID}, nil
	}
	sessions, err := s.listSessions(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	return ids, nil
}
