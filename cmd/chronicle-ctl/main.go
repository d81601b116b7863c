// Command chronicle-ctl is a manual, operator-invoked front end for the
// batch orchestrator (C6), back-fill (C7), and the system status report
// — the same operations the MCP tool surface drives, reachable here
// without going through a tool-protocol client. It has no command for
// the selective re-processor (C11).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chronicle/internal/bootstrap"
	"chronicle/internal/config"
	"chronicle/internal/obslog"
	"chronicle/internal/orchestrator"
	"chronicle/internal/toolsurface"
)

var (
	configPath string
	sessionID  string
	limit      int
	logPaths   []string
	workDirs   []string
)

func main() {
	root := &cobra.Command{
		Use:   "chronicle-ctl",
		Short: "Operate chronicle's conversation memory index outside of the MCP tool surface",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config path")

	root.AddCommand(forceSyncCmd(), backfillCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chronicle-ctl: %v\n", err)
		os.Exit(1)
	}
}

// flagSessions turns the --log/--workdir flag pairs into an explicit
// SessionSource, since an operator invoking this CLI names sessions
// directly rather than relying on host-side discovery.
type flagSessions struct {
	sessions []orchestrator.Session
}

func (f flagSessions) ListSessions(context.Context) ([]orchestrator.Session, error) {
	return f.sessions, nil
}

func buildSessionsFromFlags() toolsurface.SessionSource {
	var sessions []orchestrator.Session
	for i, path := range logPaths {
		wd := ""
		if i < len(workDirs) {
			wd = workDirs[i]
		}
		sessions = append(sessions, orchestrator.Session{
			ID:         fmt.Sprintf("session-%d", i),
			LogPath:    path,
			WorkingDir: wd,
		})
	}
	return flagSessions{sessions: sessions}
}

func buildSurface(cmd *cobra.Command) (*toolsurface.Surface, func() error, error) {
	logger := obslog.New(os.Stderr, "info")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	comps, err := bootstrap.Build(cmd.Context(), cfg, logger, buildSessionsFromFlags())
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	return comps.Surface, comps.Close, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func forceSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-sync",
		Short: "Run the batch orchestrator and back-fill over every session named by --log",
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closeFn, err := buildSurface(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			resp, err := surface.ForceConversationSync(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringArrayVar(&logPaths, "log", nil, "session log path (repeatable)")
	cmd.Flags().StringArrayVar(&workDirs, "workdir", nil, "working directory paired positionally with --log (repeatable)")
	return cmd
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Repair previous/next/solution/feedback links for one or all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closeFn, err := buildSurface(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			resp, err := surface.BackfillConversationChains(cmd.Context(), toolsurface.BackfillRequest{
				SessionID: sessionID,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "limit back-fill to one session")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of sessions processed (0 = unbounded)")
	cmd.Flags().StringArrayVar(&logPaths, "log", nil, "session log path (repeatable, for --session-id omitted)")
	cmd.Flags().StringArrayVar(&workDirs, "workdir", nil, "working directory paired positionally with --log (repeatable)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report store reachability, cache stats, and per-operation call metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closeFn, err := buildSurface(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			resp, err := surface.GetSystemStatus(cmd.Context(), toolsurface.SystemStatusRequest{})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}
