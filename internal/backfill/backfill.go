// Package backfill implements the conversation-chain back-fill (C7):
// populating previous_message_id, next_message_id, related_solution_id,
// feedback_message_id, and backfill_processed — the five relationship
// fields the real-time ingest path (C5) cannot set because, at hook
// time, the next message in a session does not exist yet.
package backfill

import (
	"context"
	"fmt"
	"sort"

	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/store"
)

// SessionReport counts what back-fill did for one session.
type SessionReport struct {
	SessionID      string
	EntriesLinked  int
	PairsFormed    int
	EntriesUpdated int
	Err            error
}

// Report is C7's structured summary across every session it processed.
type Report struct {
	Sessions []SessionReport
}

// Backfill runs C7 against the vector store.
type Backfill struct {
	Store           *store.Adapter
	Pipeline        *enrich.Pipeline
	UpdateBatchSize int
}

// Run back-fills relationships for each session ID in sessionIDs. Per
// §4.7 step 1, entries are loaded from the vector store — never from
// the raw log — because IDs derived by re-parsing the log may not
// match what was actually stored if any record was skipped at ingest.
func (b *Backfill) Run(ctx context.Context, sessionIDs []string) (Report, error) {
	report := Report{Sessions: make([]SessionReport, 0, len(sessionIDs))}
	for _, sid := range sessionIDs {
		sr := b.runSession(ctx, sid)
		report.Sessions = append(report.Sessions, sr)
	}
	return report, nil
}

func (b *Backfill) runSession(ctx context.Context, sessionID string) SessionReport {
	sr := SessionReport{SessionID: sessionID}

	entries, err := b.Store.GetWhere(ctx, map[string]string{"session_id": sessionID}, 0)
	if err != nil {
		sr.Err = fmt.Errorf("load session %s: %w", sessionID, err)
		return sr
	}
	if len(entries) == 0 {
		return sr
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TimestampUnix != entries[j].TimestampUnix {
			return entries[i].TimestampUnix < entries[j].TimestampUnix
		}
		return entries[i].SequencePosition < entries[j].SequencePosition
	})

	var toUpdate []entry.ConversationEntry
	n := len(entries)
	for i := range entries {
		changed := false
		if i > 0 && entries[i].PreviousMessageID != entries[i-1].ID {
			entries[i].PreviousMessageID = entries[i-1].ID
			changed = true
		}
		if i < n-1 && entries[i].NextMessageID != entries[i+1].ID {
			entries[i].NextMessageID = entries[i+1].ID
			changed = true
		}
		sr.EntriesLinked++
		if changed {
			entries[i].BackfillProcessed = true
		}
	}

	for i := 1; i < n; i++ {
		solution := entries[i-1]
		feedback := entries[i]
		if solution.Type != entry.TypeAssistant || !solution.IsSolutionAttempt {
			continue
		}
		if feedback.Type != entry.TypeUser {
			continue
		}
		if entries[i-1].FeedbackMessageID != "" {
			continue // first feedback already won; later messages never overwrite
		}
		sentiment, strength := b.classifyFeedback(feedback)
		if sentiment == entry.SentimentNone {
			continue
		}
		entries[i].IsFeedbackToSolution = true
		entries[i].UserFeedbackSentiment = sentiment
		entries[i].ValidationStrength = strength
		entries[i].RelatedSolutionID = solution.ID
		entries[i-1].FeedbackMessageID = feedback.ID
		entries[i].BackfillProcessed = true
		entries[i-1].BackfillProcessed = true
		sr.PairsFormed++
	}

	for i := range entries {
		if !entries[i].BackfillProcessed {
			continue
		}
		entries[i].BackfillProcessed = true
		toUpdate = append(toUpdate, entries[i])
	}

	if len(toUpdate) == 0 {
		return sr
	}

	batchSize := b.UpdateBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(toUpdate); start += batchSize {
		end := start + batchSize
		if end > len(toUpdate) {
			end = len(toUpdate)
		}
		if err := b.Store.Update(ctx, toUpdate[start:end]); err != nil {
			sr.Err = fmt.Errorf("update batch [%d:%d] for session %s: %w", start, end, sessionID, err)
			return sr
		}
	}
	sr.EntriesUpdated = len(toUpdate)
	return sr
}

// classifyFeedback reuses the same sentiment classifier C3 uses so a
// feedback message already enriched in real time and one discovered
// only at back-fill time converge on the same verdict.
func (b *Backfill) classifyFeedback(feedback entry.ConversationEntry) (entry.Sentiment, float64) {
	if feedback.UserFeedbackSentiment != "" && feedback.UserFeedbackSentiment != entry.SentimentNone {
		return feedback.UserFeedbackSentiment, feedback.ValidationStrength
	}
	return b.Pipeline.ClassifyFeedbackStandalone(feedback.Text)
}
