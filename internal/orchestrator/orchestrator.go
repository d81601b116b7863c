// Package orchestrator implements the on-demand batch orchestrator
// (C6): classify each session's indexing state, re-enrich and upsert
// what's missing across a bounded worker pool, then hand off to C7
// back-fill for the relationship fields C5 cannot populate in real
// time. It does not invoke the selective re-processor (C11).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chronicle/internal/backfill"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/projectmap"
	"chronicle/internal/store"
	"chronicle/internal/transcript"
)

// State classifies one session log's relationship to the store.
type State string

const (
	StateFullyIndexed             State = "fully_indexed"
	StateNeedsMetadataEnhancement State = "needs_metadata_enhancement"
	StateNeedsReindex             State = "needs_reindex"
)

// Session is one unit of work: a host-owned session log plus the
// working directory its messages were produced in (for project
// resolution). Discovering the set of sessions to process is the
// host's responsibility — C6 takes the list as input.
type Session struct {
	ID         string
	LogPath    string
	WorkingDir string
}

// SessionStats reports per-session outcome.
type SessionStats struct {
	SessionID        string
	State            State
	EntriesProcessed int
	Err              error
	Duration         time.Duration
}

// Report is C6's structured progress/outcome summary.
type Report struct {
	Sessions            []SessionStats
	RelationshipsReport backfill.Report
}

// Logger is the narrow logging seam Orchestrator reports through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Orchestrator runs C6 over a set of sessions.
type Orchestrator struct {
	Store           *store.Adapter
	Pipeline        *enrich.Pipeline
	Projects        *projectmap.Map
	Backfill        *backfill.Backfill
	WorkerCount     int
	UpsertBatchSize int
	Logger          Logger
}

// Run classifies, re-enriches, and upserts every session, bounded to
// WorkerCount concurrent sessions, then runs C7 over the full set.
func (o *Orchestrator) Run(ctx context.Context, sessions []Session) (Report, error) {
	workers := o.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	stats := make([]SessionStats, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			stats[i] = o.processSession(gctx, sess)
			return nil
		})
	}
	_ = g.Wait() // per-session errors are captured in stats, never abort the batch

	sessionIDs := make([]string, len(sessions))
	for i, s := range sessions {
		sessionIDs[i] = s.ID
	}
	bfReport, err := o.Backfill.Run(ctx, sessionIDs)
	if err != nil {
		o.warn("backfill failed", err)
	}

	anySucceeded := false
	for _, s := range stats {
		if s.Err == nil {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded && len(sessions) > 0 {
		return Report{Sessions: stats, RelationshipsReport: bfReport}, fmt.Errorf("all %d sessions failed", len(sessions))
	}
	return Report{Sessions: stats, RelationshipsReport: bfReport}, nil
}

func (o *Orchestrator) processSession(ctx context.Context, sess Session) SessionStats {
	start := time.Now()
	stat := SessionStats{SessionID: sess.ID}

	entries, state, err := o.classify(ctx, sess)
	stat.State = state
	if err != nil {
		stat.Err = err
		stat.Duration = time.Since(start)
		o.warn("classify session", err)
		return stat
	}
	switch state {
	case StateFullyIndexed:
		stat.Duration = time.Since(start)
		return stat
	case StateNeedsMetadataEnhancement:
		return o.enhanceMetadata(ctx, sess, entries, stat, start)
	default:
		return o.reindex(ctx, sess, entries, stat, start)
	}
}

// reindex re-derives every field from scratch and upserts the full
// entry, including a fresh (re-)embed. Reserved for needs_reindex, where
// the stored entries — if any — cannot be trusted as a starting point.
func (o *Orchestrator) reindex(ctx context.Context, sess Session, entries []entry.ConversationEntry, stat SessionStats, start time.Time) SessionStats {
	projectName, projectPath := o.Projects.Resolve(sess.WorkingDir)

	enriched := make([]entry.ConversationEntry, len(entries))
	var predecessor *entry.ConversationEntry
	for i, e := range entries {
		e.ProjectName, e.ProjectPath = projectName, projectPath
		ee := o.Pipeline.Enrich(e, predecessor)
		enriched[i] = ee
		predecessor = &enriched[i]
	}

	batchSize := o.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	for i := 0; i < len(enriched); i += batchSize {
		end := i + batchSize
		if end > len(enriched) {
			end = len(enriched)
		}
		if err := o.Store.Upsert(ctx, enriched[i:end]); err != nil {
			stat.Err = fmt.Errorf("upsert batch [%d:%d]: %w", i, end, err)
			stat.Duration = time.Since(start)
			return stat
		}
	}

	stat.EntriesProcessed = len(enriched)
	stat.Duration = time.Since(start)
	return stat
}

// enhanceMetadata fills only the marker fields HasEnrichmentMarkers
// finds missing on each already-stored entry, leaving every other field
// — in particular a C9-adjusted solution_quality_score and any
// relationship field C7/C11 already populated — untouched. This is the
// selective-update shape reprocess.go uses for C11, applied here so
// needs_metadata_enhancement never regresses a session back to its
// as-ingested state the way a full reindex would.
func (o *Orchestrator) enhanceMetadata(ctx context.Context, sess Session, entries []entry.ConversationEntry, stat SessionStats, start time.Time) SessionStats {
	if len(entries) == 0 {
		stat.Duration = time.Since(start)
		return stat
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	existing, err := o.Store.Get(ctx, ids)
	if err != nil {
		stat.Err = fmt.Errorf("load existing entries: %w", err)
		stat.Duration = time.Since(start)
		o.warn("load existing entries", err)
		return stat
	}
	byID := make(map[string]entry.ConversationEntry, len(existing))
	for _, e := range existing {
		byID[e.ID] = e
	}

	projectName, projectPath := o.Projects.Resolve(sess.WorkingDir)

	var toUpdate []entry.ConversationEntry
	var toUpsert []entry.ConversationEntry
	merged := make([]entry.ConversationEntry, len(entries))
	var predecessor *entry.ConversationEntry
	for i, raw := range entries {
		current, stored := byID[raw.ID]
		if !stored {
			current = raw
			current.ProjectName, current.ProjectPath = projectName, projectPath
		}
		if !HasEnrichmentMarkers(current) {
			fresh := o.Pipeline.Enrich(raw, predecessor)
			fillMissingMarkers(&current, fresh)
			if stored {
				toUpdate = append(toUpdate, current)
			} else {
				toUpsert = append(toUpsert, current)
			}
		}
		merged[i] = current
		predecessor = &merged[i]
	}

	if len(toUpdate) > 0 {
		if err := o.Store.Update(ctx, toUpdate); err != nil {
			stat.Err = fmt.Errorf("update enriched entries: %w", err)
			stat.Duration = time.Since(start)
			return stat
		}
	}
	if len(toUpsert) > 0 {
		if err := o.Store.Upsert(ctx, toUpsert); err != nil {
			stat.Err = fmt.Errorf("upsert enriched entries: %w", err)
			stat.Duration = time.Since(start)
			return stat
		}
	}

	stat.EntriesProcessed = len(toUpdate) + len(toUpsert)
	stat.Duration = time.Since(start)
	return stat
}

// fillMissingMarkers copies only the marker fields HasEnrichmentMarkers
// found absent on dst from fresh, plus the feature fields a topic/
// solution pass derives alongside them. It never overwrites a field
// already present on dst.
func fillMissingMarkers(dst *entry.ConversationEntry, fresh entry.ConversationEntry) {
	if dst.DetectedTopics == nil {
		dst.DetectedTopics = fresh.DetectedTopics
		dst.HasCode = fresh.HasCode
		dst.ToolsUsed = fresh.ToolsUsed
		dst.IsSolutionAttempt = fresh.IsSolutionAttempt
		dst.SolutionCategory = fresh.SolutionCategory
		dst.IsFeedbackToSolution = fresh.IsFeedbackToSolution
		if dst.UserFeedbackSentiment == "" {
			dst.UserFeedbackSentiment = fresh.UserFeedbackSentiment
		}
		dst.ValidationStrength = fresh.ValidationStrength
	}
	if dst.Type == entry.TypeAssistant && dst.SolutionQualityScore == 0 {
		dst.SolutionQualityScore = fresh.SolutionQualityScore
	}
	if dst.SequencePosition > 1 && dst.PreviousMessageID == "" {
		dst.PreviousMessageID = fresh.PreviousMessageID
	}
}

// classify implements the §4.6 heuristic: probe the first and last
// expected entry IDs for presence plus the enrichment marker fields.
func (o *Orchestrator) classify(ctx context.Context, sess Session) ([]entry.ConversationEntry, State, error) {
	r, err := transcript.Open(sess.LogPath, sess.ID)
	if err != nil {
		return nil, StateNeedsReindex, fmt.Errorf("open session log: %w", err)
	}
	defer r.Close()
	entries, err := r.All()
	if err != nil {
		return nil, StateNeedsReindex, fmt.Errorf("read session log: %w", err)
	}
	if len(entries) == 0 {
		return entries, StateFullyIndexed, nil
	}

	first, last := entries[0], entries[len(entries)-1]
	recs, err := o.Store.Get(ctx, []string{first.ID, last.ID})
	if err != nil {
		return entries, StateNeedsReindex, nil
	}
	if len(recs) < 2 {
		return entries, StateNeedsReindex, nil
	}
	for _, rec := range recs {
		if !HasEnrichmentMarkers(rec) {
			return entries, StateNeedsMetadataEnhancement, nil
		}
	}
	return entries, StateFullyIndexed, nil
}

// HasEnrichmentMarkers reports whether every marker field Enrich
// populates for e's type and position is already set. DetectedTopics is
// the universal marker: a skeleton entry's DetectedTopics is nil
// (detected_topics round-trips as the JSON literal "null"), while even a
// zero-topic enrichment result is a non-nil empty map ("{}"). The other
// two markers are conditional on what Enrich actually writes: an
// assistant entry always gets SolutionQualityScore set to a non-zero
// starting value, and any entry past the first in its session always
// gets PreviousMessageID set from its predecessor — so a non-first entry
// missing either is still unenriched even if DetectedTopics looks done.
// Exported for C10's smart_metadata_sync_status, which needs the same
// check across the whole store rather than per session.
func HasEnrichmentMarkers(e entry.ConversationEntry) bool {
	if e.DetectedTopics == nil {
		return false
	}
	if e.Type == entry.TypeAssistant && e.SolutionQualityScore == 0 {
		return false
	}
	if e.SequencePosition > 1 && e.PreviousMessageID == "" {
		return false
	}
	return true
}

func (o *Orchestrator) warn(msg string, err error) {
	if o.Logger != nil {
		o.Logger.Warn(msg, map[string]any{"error": err.Error()})
	}
}
