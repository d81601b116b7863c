// Package hookcli implements the shared flag-parsing and wiring for the
// two hook executables (cmd/hook-user, cmd/hook-assistant). Both hooks
// are invoked identically by the host — role comes from the session log
// record itself, not from which binary ran — so the only thing that
// differs between them is the label passed to Run; both share the same
// exit-code contract of spec §6.2.
package hookcli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"chronicle/internal/bootstrap"
	"chronicle/internal/config"
	"chronicle/internal/ingest"
	"chronicle/internal/obslog"
)

// Run parses args, builds a Hook, and executes one C5 pass. It returns
// the process exit code; callers should never print anything beyond
// what Run already logs to stderr, matching the contract that hook
// failures never reach stdout or block the host.
func Run(label string, args []string) int {
	fs := flag.NewFlagSet(label, flag.ContinueOnError)
	sessionID := fs.String("session-id", "", "session identifier (required)")
	logPath := fs.String("log-path", "", "path to the session's append-only log (required)")
	workingDir := fs.String("working-dir", "", "working directory the message was produced in")
	configPath := fs.String("config", "", "optional YAML config path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := obslog.NewStderr("info")

	if *sessionID == "" || *logPath == "" {
		fmt.Fprintf(os.Stderr, "%s: -session-id and -log-path are required\n", label)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", map[string]any{"error": err.Error()})
		return 1
	}

	ctx := context.Background()
	comps, err := bootstrap.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("bootstrap failed", map[string]any{"error": err.Error()})
		return 1
	}
	defer comps.Close()

	_, err = comps.Hook.Run(ctx, ingest.Request{
		SessionID:  *sessionID,
		LogPath:    *logPath,
		WorkingDir: *workingDir,
	})
	if err != nil {
		// Hook.Run has already logged the failure; a non-zero exit code
		// is the only other signal the host receives.
		return 1
	}
	return 0
}
