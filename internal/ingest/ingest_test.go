package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/embedclient"
	"chronicle/internal/entry"
	"chronicle/internal/enrich"
	"chronicle/internal/obslog"
	"chronicle/internal/projectmap"
	"chronicle/internal/store"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newHook(st *store.Adapter) *Hook {
	return &Hook{
		Store:    st,
		Pipeline: enrich.New(enrich.DefaultTopicLexicon(), enrich.DefaultSolutionPatterns(), nil, nil),
		Projects: &projectmap.Map{},
		Logger:   obslog.Noop{},
	}
}

func TestHook_Run_IngestsLatestMessage(t *testing.T) {
	ctx := context.Background()
	path := writeLog(t,
		`{"role":"user","text":"how do I deploy this","timestamp":"2026-01-01T00:00:00Z"}`,
		`{"role":"assistant","text":"run docker compose up -d to deploy it","timestamp":"2026-01-01T00:00:05Z"}`,
	)
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	h := newHook(st)

	res, err := h.Run(ctx, Request{SessionID: "s1", LogPath: path, WorkingDir: "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SequencePosition)

	got, err := st.Get(ctx, []string{res.EntryID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsSolutionAttempt)
	assert.Equal(t, entry.DeriveID("s1", entry.TypeUser, 1), got[0].PreviousMessageID, "C5 sets previous_message_id from the ingest-time predecessor")
	assert.Empty(t, got[0].NextMessageID, "next_message_id is C7's job, not C5's")
}

func TestHook_Run_FirstMessageHasNoPredecessor(t *testing.T) {
	ctx := context.Background()
	path := writeLog(t, `{"role":"user","text":"hello there","timestamp":"2026-01-01T00:00:00Z"}`)
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	h := newHook(st)

	res, err := h.Run(ctx, Request{SessionID: "s1", LogPath: path, WorkingDir: "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SequencePosition)
}

func TestHook_Run_EmptyLogIsError(t *testing.T) {
	ctx := context.Background()
	path := writeLog(t)
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	h := newHook(st)

	_, err := h.Run(ctx, Request{SessionID: "s1", LogPath: path, WorkingDir: "/tmp"})
	assert.Error(t, err)
}

func TestHook_Run_MissingLogFileIsError(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory(), embedclient.NewDeterministic(32, 1))
	h := newHook(st)

	_, err := h.Run(ctx, Request{SessionID: "s1", LogPath: "/nonexistent/path.jsonl", WorkingDir: "/tmp"})
	assert.Error(t, err)
}
