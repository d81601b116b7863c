// Package ingest implements the real-time per-message indexing path
// (C5): the hook-invoked contract that parses a message and its
// predecessor out of the host's session log, resolves the project,
// enriches, and upserts a single entry without ever blocking the host.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/projectmap"
	"chronicle/internal/store"
	"chronicle/internal/transcript"
)

// Logger is the narrow logging seam Hook reports duration/outcome
// through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Clock abstracts time.Now so duration measurement is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Hook is the C5 entry point a hook executable calls once per message.
type Hook struct {
	Store    *store.Adapter
	Pipeline *enrich.Pipeline
	Projects *projectmap.Map
	Logger   Logger
	Clock    Clock
}

// Request is what the host supplies on every invocation: the session
// and the host-owned log path to re-scan for this message and its
// predecessor, plus the working directory for project resolution.
type Request struct {
	SessionID  string
	LogPath    string
	WorkingDir string
}

// Result reports what Run did, for the caller (typically a thin main)
// to turn into an exit code.
type Result struct {
	EntryID          string
	SequencePosition int
	Duration         time.Duration
}

// Run executes the five C5 steps: locate the message and its
// predecessor by re-reading the full current log, resolve the project,
// enrich (previous_message_id is set from the predecessor; the other
// cross-message relationships are C7's job), and upsert.
// It never returns an error that should block the host — callers map a
// non-nil error to a non-zero exit code and log to stderr, nothing more.
func (h *Hook) Run(ctx context.Context, req Request) (Result, error) {
	start := h.now()

	skeleton, predecessor, err := h.locateLatest(req.SessionID, req.LogPath)
	if err != nil {
		h.logError("locate message", err, req)
		return Result{}, err
	}

	skeleton.ProjectName, skeleton.ProjectPath = h.Projects.Resolve(req.WorkingDir)

	enriched := h.Pipeline.Enrich(skeleton, predecessor)

	if err := h.Store.Upsert(ctx, []entry.ConversationEntry{enriched}); err != nil {
		h.logError("upsert", err, req)
		return Result{}, fmt.Errorf("upsert entry %s: %w", enriched.ID, err)
	}

	dur := h.now().Sub(start)
	if h.Logger != nil {
		h.Logger.Info("ingest completed", map[string]any{
			"session_id":        req.SessionID,
			"entry_id":          enriched.ID,
			"sequence_position": enriched.SequencePosition,
			"duration_ms":       dur.Milliseconds(),
		})
	}
	return Result{EntryID: enriched.ID, SequencePosition: enriched.SequencePosition, Duration: dur}, nil
}

// locateLatest re-reads the entire current log and returns the final
// skeleton plus its predecessor (nil if the log has exactly one
// record). The log is re-parsed in full every call because C5 has no
// persisted read offset of its own — the host's log is the only source
// of truth for "what is the latest message".
func (h *Hook) locateLatest(sessionID, logPath string) (latest entry.ConversationEntry, predecessor *entry.ConversationEntry, err error) {
	r, err := transcript.Open(logPath, sessionID)
	if err != nil {
		return entry.ConversationEntry{}, nil, fmt.Errorf("open session log: %w", err)
	}
	defer r.Close()

	var prev *entry.ConversationEntry
	var cur entry.ConversationEntry
	seen := false
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entry.ConversationEntry{}, nil, fmt.Errorf("read session log: %w", err)
		}
		if seen {
			p := cur
			prev = &p
		}
		cur = e
		seen = true
	}
	if !seen {
		return entry.ConversationEntry{}, nil, fmt.Errorf("session log %s has no recognizable records", logPath)
	}
	return cur, prev, nil
}

func (h *Hook) now() time.Time {
	if h.Clock != nil {
		return h.Clock.Now()
	}
	return time.Now()
}

func (h *Hook) logError(stage string, err error, req Request) {
	if h.Logger != nil {
		h.Logger.Error("ingest failed", map[string]any{
			"stage":      stage,
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}
}
