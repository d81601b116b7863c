// Package sessiondir discovers sessions for whole-store operations by
// walking a directory of host-written session logs, the same shape
// migrateprojects walks a projects tree: one subdirectory per unit of
// work, a fixed file name inside it for the payload, and an optional
// sidecar for metadata the directory layout alone doesn't carry.
package sessiondir

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"chronicle/internal/orchestrator"
)

const (
	logFileName     = "session.jsonl"
	workdirFileName = ".workdir"
)

// Scanner implements toolsurface.SessionSource over a root directory
// laid out as <root>/<session-id>/session.jsonl, with an optional
// <root>/<session-id>/.workdir file naming the working directory the
// session's messages were produced in.
type Scanner struct {
	Root string
}

// New returns a Scanner rooted at dir.
func New(dir string) *Scanner {
	return &Scanner{Root: dir}
}

// ListSessions walks Root and returns one Session per subdirectory
// that contains a session.jsonl file. A missing Root is not an error:
// it reports zero sessions, since "no sessions recorded yet" is a
// normal state for a freshly configured server.
func (s *Scanner) ListSessions(ctx context.Context) ([]orchestrator.Session, error) {
	if s.Root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []orchestrator.Session
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		sessionDir := filepath.Join(s.Root, e.Name())
		logPath := filepath.Join(sessionDir, logFileName)
		if _, err := os.Stat(logPath); err != nil {
			continue
		}
		workingDir := ""
		if data, err := os.ReadFile(filepath.Join(sessionDir, workdirFileName)); err == nil {
			workingDir = strings.TrimSpace(string(data))
		}
		sessions = append(sessions, orchestrator.Session{
			ID:         e.Name(),
			LogPath:    logPath,
			WorkingDir: workingDir,
		})
	}
	return sessions, nil
}
