// Package reprocess implements the selective field re-processor (C11):
// given a set of field names and an optional scope, it re-derives only
// those fields (plus whatever fields they depend on) against the stored
// text and predecessor, snapshots prior values to a backup file, and
// writes the result back. Re-running with the same fields against
// unchanged text is a no-op: every stage it drives is a pure function of
// (text, predecessor).
package reprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chronicle/internal/backfill"
	"chronicle/internal/chronicleerr"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/store"
)

// fieldDeps closes a requested field over the fields it cannot be
// derived without. Requesting solution_category without is_solution_attempt
// would silently reuse a stale attempt flag; closing the dependency keeps
// the re-run internally consistent.
var fieldDeps = map[string][]string{
	"solution_category":       {"is_solution_attempt"},
	"solution_quality_score":  {"is_solution_attempt"},
	"user_feedback_sentiment": {"is_feedback_to_solution"},
	"validation_strength":     {"is_feedback_to_solution"},
	"related_solution_id":     {"is_feedback_to_solution"},
	"feedback_message_id":     {"is_solution_attempt"},
}

// pipelineFields are produced by re-running enrich.Pipeline.Enrich and
// copying across only the closed field set.
var pipelineFields = map[string]bool{
	"has_code":                true,
	"tools_used":              true,
	"detected_topics":         true,
	"is_solution_attempt":     true,
	"solution_category":       true,
	"solution_quality_score":  true,
	"is_feedback_to_solution": true,
	"user_feedback_sentiment": true,
	"validation_strength":     true,
}

// relationshipFields are produced by backfill.Backfill, which already
// implements idempotent chain-linking and first-feedback-wins pairing.
var relationshipFields = map[string]bool{
	"previous_message_id": true,
	"next_message_id":     true,
	"related_solution_id": true,
	"feedback_message_id": true,
}

// closeFields expands requested to a fixed point over fieldDeps.
func closeFields(requested []string) map[string]bool {
	out := map[string]bool{}
	for _, f := range requested {
		out[f] = true
	}
	changed := true
	for changed {
		changed = false
		for f := range out {
			for _, dep := range fieldDeps[f] {
				if !out[dep] {
					out[dep] = true
					changed = true
				}
			}
		}
	}
	return out
}

// Clock abstracts time.Now so backup filenames are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Logger is the narrow logging seam Reprocessor reports through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// Reprocessor runs C11 against a store.
type Reprocessor struct {
	Store     *store.Adapter
	Pipeline  *enrich.Pipeline
	Backfill  *backfill.Backfill
	BackupDir string
	Clock     Clock
	Logger    Logger
}

// Request scopes a re-processing run. Exactly one of SessionID or
// EntryIDs should be set; if both are empty, Run returns a validation
// error rather than silently re-processing nothing.
type Request struct {
	SessionID    string
	EntryIDs     []string
	Fields       []string
	CreateBackup bool
}

// Response reports what Run did.
type Response struct {
	EntriesUpdated int
	FieldsApplied  []string
	SessionsLinked []string
	BackupPath     string
}

// backupRecord is one entry's prior field values, keyed by field name.
type backupRecord struct {
	EntryID   string         `json:"entry_id"`
	PriorVals map[string]any `json:"prior_values"`
}

// Run re-derives the closure of req.Fields for the scoped entries,
// snapshotting prior values first when requested.
func (r *Reprocessor) Run(ctx context.Context, req Request) (Response, error) {
	if len(req.Fields) == 0 {
		return Response{}, chronicleerr.New(chronicleerr.KindValidationFailed, "missing_fields",
			"reprocess requires at least one field name")
	}
	if req.SessionID == "" && len(req.EntryIDs) == 0 {
		return Response{}, chronicleerr.New(chronicleerr.KindValidationFailed, "missing_scope",
			"reprocess requires session_id or entry_ids")
	}

	effective := closeFields(req.Fields)
	applied := make([]string, 0, len(effective))
	for f := range effective {
		applied = append(applied, f)
	}

	entries, err := r.resolveScope(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if len(entries) == 0 {
		return Response{FieldsApplied: applied}, nil
	}

	wantsPipeline := false
	wantsRelationship := false
	for f := range effective {
		if pipelineFields[f] {
			wantsPipeline = true
		}
		if relationshipFields[f] {
			wantsRelationship = true
		}
	}

	var backupPath string
	if req.CreateBackup {
		backupPath, err = r.writeBackup(entries, effective)
		if err != nil {
			return Response{}, fmt.Errorf("write backup: %w", err)
		}
	}

	updated := 0
	if wantsPipeline {
		n, err := r.rerunPipeline(ctx, entries, effective)
		if err != nil {
			return Response{}, err
		}
		updated = n
	}

	var sessionsLinked []string
	if wantsRelationship {
		sessionsLinked, err = r.rerunRelationships(ctx, entries)
		if err != nil {
			return Response{}, err
		}
	}

	return Response{
		EntriesUpdated: updated,
		FieldsApplied:  applied,
		SessionsLinked: sessionsLinked,
		BackupPath:     backupPath,
	}, nil
}

func (r *Reprocessor) resolveScope(ctx context.Context, req Request) ([]entry.ConversationEntry, error) {
	if len(req.EntryIDs) > 0 {
		return r.Store.Get(ctx, req.EntryIDs)
	}
	return r.Store.GetWhere(ctx, map[string]string{"session_id": req.SessionID}, 0)
}

// rerunPipeline recomputes a full enrichment pass per entry (resolving
// each entry's predecessor via previous_message_id, already populated by
// ingest or backfill) and copies across only the closed pipeline fields,
// leaving every other field on the stored entry untouched.
func (r *Reprocessor) rerunPipeline(ctx context.Context, entries []entry.ConversationEntry, fields map[string]bool) (int, error) {
	updates := make([]entry.ConversationEntry, 0, len(entries))
	for _, e := range entries {
		predecessor := r.fetchPredecessor(ctx, e)
		fresh := r.Pipeline.Enrich(e, predecessor)
		applyFields(&e, fresh, fields)
		updates = append(updates, e)
	}
	if err := r.Store.Update(ctx, updates); err != nil {
		return 0, fmt.Errorf("update reprocessed entries: %w", err)
	}
	return len(updates), nil
}

func (r *Reprocessor) fetchPredecessor(ctx context.Context, e entry.ConversationEntry) *entry.ConversationEntry {
	if e.PreviousMessageID == "" {
		return nil
	}
	got, err := r.Store.Get(ctx, []string{e.PreviousMessageID})
	if err != nil || len(got) == 0 {
		return nil
	}
	return &got[0]
}

// applyFields copies the fields named in the closure from fresh onto
// dst, leaving everything else (including relationship fields owned by
// C7) unchanged.
func applyFields(dst *entry.ConversationEntry, fresh entry.ConversationEntry, fields map[string]bool) {
	if fields["has_code"] {
		dst.HasCode = fresh.HasCode
	}
	if fields["tools_used"] {
		dst.ToolsUsed = fresh.ToolsUsed
	}
	if fields["detected_topics"] {
		dst.DetectedTopics = fresh.DetectedTopics
	}
	if fields["is_solution_attempt"] {
		dst.IsSolutionAttempt = fresh.IsSolutionAttempt
	}
	if fields["solution_category"] {
		dst.SolutionCategory = fresh.SolutionCategory
	}
	if fields["solution_quality_score"] {
		dst.SolutionQualityScore = fresh.SolutionQualityScore
	}
	if fields["is_feedback_to_solution"] {
		dst.IsFeedbackToSolution = fresh.IsFeedbackToSolution
	}
	if fields["user_feedback_sentiment"] {
		dst.UserFeedbackSentiment = fresh.UserFeedbackSentiment
	}
	if fields["validation_strength"] {
		dst.ValidationStrength = fresh.ValidationStrength
	}
}

func (r *Reprocessor) rerunRelationships(ctx context.Context, entries []entry.ConversationEntry) ([]string, error) {
	seen := map[string]bool{}
	var sessionIDs []string
	for _, e := range entries {
		if !seen[e.SessionID] {
			seen[e.SessionID] = true
			sessionIDs = append(sessionIDs, e.SessionID)
		}
	}
	if r.Backfill == nil || len(sessionIDs) == 0 {
		return sessionIDs, nil
	}
	if _, err := r.Backfill.Run(ctx, sessionIDs); err != nil {
		return sessionIDs, fmt.Errorf("rerun relationship fields: %w", err)
	}
	return sessionIDs, nil
}

func (r *Reprocessor) writeBackup(entries []entry.ConversationEntry, fields map[string]bool) (string, error) {
	if r.BackupDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.BackupDir, 0o755); err != nil {
		return "", err
	}
	records := make([]backupRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, backupRecord{EntryID: e.ID, PriorVals: snapshot(e, fields)})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.BackupDir, fmt.Sprintf("reprocess_%d.json", r.now().UnixNano()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func snapshot(e entry.ConversationEntry, fields map[string]bool) map[string]any {
	out := map[string]any{}
	if fields["has_code"] {
		out["has_code"] = e.HasCode
	}
	if fields["tools_used"] {
		out["tools_used"] = e.ToolsUsed
	}
	if fields["detected_topics"] {
		out["detected_topics"] = e.DetectedTopics
	}
	if fields["is_solution_attempt"] {
		out["is_solution_attempt"] = e.IsSolutionAttempt
	}
	if fields["solution_category"] {
		out["solution_category"] = e.SolutionCategory
	}
	if fields["solution_quality_score"] {
		out["solution_quality_score"] = e.SolutionQualityScore
	}
	if fields["is_feedback_to_solution"] {
		out["is_feedback_to_solution"] = e.IsFeedbackToSolution
	}
	if fields["user_feedback_sentiment"] {
		out["user_feedback_sentiment"] = e.UserFeedbackSentiment
	}
	if fields["validation_strength"] {
		out["validation_strength"] = e.ValidationStrength
	}
	if fields["previous_message_id"] {
		out["previous_message_id"] = e.PreviousMessageID
	}
	if fields["next_message_id"] {
		out["next_message_id"] = e.NextMessageID
	}
	if fields["related_solution_id"] {
		out["related_solution_id"] = e.RelatedSolutionID
	}
	if fields["feedback_message_id"] {
		out["feedback_message_id"] = e.FeedbackMessageID
	}
	return out
}

func (r *Reprocessor) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now()
	}
	return time.Now()
}
