// Package transcript reads a host-owned, append-only, newline-delimited
// session log into an ordered sequence of entry skeletons. It never
// writes to the log and never re-orders records.
package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"chronicle/internal/entry"
)

// rawRecord is the minimal shape a host-produced log line must carry.
// Extra fields present in the log but not named here are simply ignored
// by the reader — enrichment and the metadata codec are where unknown
// data is preserved, not this parse step.
type rawRecord struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Stats reports how many lines a Reader consumed and how many it had to
// skip because they did not parse as a rawRecord.
type Stats struct {
	RecordsRead    int
	RecordsSkipped int
}

// Reader produces a lazy, finite, restartable ordered sequence of
// ConversationEntry skeletons from a session log. "Restartable" means a
// fresh Reader opened against the same path from the beginning reproduces
// the same sequence of IDs in the same order — callers needing to resume
// mid-stream do so by re-deriving sequence_position from a known offset,
// not by seeking within this Reader.
type Reader struct {
	sessionID string
	file      *os.File
	scanner   *bufio.Scanner
	seq       int
	stats     Stats
}

// Open begins reading sessionID's log at path. The caller must call
// Close when done.
func Open(path, sessionID string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return &Reader{sessionID: sessionID, file: f, scanner: sc}, nil
}

// Next returns the next entry skeleton in the log, or io.EOF when the
// log is exhausted. Malformed lines (invalid JSON, missing role/text,
// unrecognized role) are skipped and counted, never returned and never
// cause Next to abort the sequence early.
func (r *Reader) Next() (entry.ConversationEntry, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			r.stats.RecordsSkipped++
			continue
		}

		typ, ok := normalizeRole(rec.Role)
		if !ok || rec.Text == "" {
			r.stats.RecordsSkipped++
			continue
		}

		unixTS, iso := normalizeTimestamp(rec.Timestamp)

		r.seq++
		r.stats.RecordsRead++
		return entry.NewSkeleton(r.sessionID, r.seq, typ, rec.Text, iso, unixTS), nil
	}
	if err := r.scanner.Err(); err != nil {
		return entry.ConversationEntry{}, err
	}
	return entry.ConversationEntry{}, io.EOF
}

// Stats returns the running counts of records read and skipped so far.
func (r *Reader) Stats() Stats { return r.stats }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }

// All drains the reader into a slice, for callers (C6, C7) that need the
// whole session rather than a streaming consumer. It still goes through
// Next so skip/count semantics are identical in both usages.
func (r *Reader) All() ([]entry.ConversationEntry, error) {
	var out []entry.ConversationEntry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

func normalizeRole(role string) (entry.Type, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return entry.TypeUser, true
	case "assistant", "ai", "model":
		return entry.TypeAssistant, true
	default:
		return "", false
	}
}

// normalizeTimestamp accepts RFC3339 and falls back to "now" (UTC) when
// the record carries no parseable timestamp, so a malformed timestamp
// degrades the entry rather than skipping it outright — role and text
// are the fields that must be present, not timing.
func normalizeTimestamp(raw string) (unix int64, iso string) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.Unix(), t.UTC().Format(time.RFC3339)
		}
	}
	now := time.Now().UTC()
	return now.Unix(), now.Format(time.RFC3339)
}
