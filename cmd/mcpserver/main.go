// Command mcpserver exposes the fixed C10 tool set (spec §6.1) over
// MCP-over-stdio, grounded on the teacher's cmd/mcpserver registration
// pattern: one RegisterTool call per operation, each handler converting
// a typed Surface call into a single text-content tool response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"chronicle/internal/bootstrap"
	"chronicle/internal/config"
	"chronicle/internal/obslog"
	"chronicle/internal/search"
	"chronicle/internal/sessiondir"
	"chronicle/internal/toolsurface"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config path")
	sessionsDir := flag.String("sessions-dir", os.Getenv("CHRONICLE_SESSIONS_DIR"), "directory of host-written session logs, for whole-store operations (CHRONICLE_SESSIONS_DIR env)")
	flag.Parse()

	logger := obslog.NewStderr("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	comps, err := bootstrap.Build(ctx, cfg, logger, sessiondir.New(*sessionsDir))
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer comps.Close()

	surface := comps.Surface

	server := mcp.NewServer(stdio.NewStdioServerTransport())

	register(server, "search_conversations_unified",
		"Search conversation history with mode-routed ranking, filters, and optional context chains",
		func(args search.Request) (*mcp.ToolResponse, error) {
			return toolResponse(surface.Search(ctx, args))
		})

	register(server, "get_conversation_context_chain",
		"Return an anchor message plus its surrounding conversation chain",
		func(args toolsurface.ContextChainRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.GetConversationContextChain(ctx, args))
		})

	register(server, "force_conversation_sync", "Run the batch orchestrator and back-fill over every known session",
		func(args struct{}) (*mcp.ToolResponse, error) {
			return toolResponse(surface.ForceConversationSync(ctx))
		})

	register(server, "backfill_conversation_chains", "Repair previous/next/solution/feedback links for one or all sessions",
		func(args toolsurface.BackfillRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.BackfillConversationChains(ctx, args))
		})

	register(server, "run_unified_enhancement", "Run back-fill and optional targeted re-processing across sessions",
		func(args toolsurface.EnhancementRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.RunUnifiedEnhancement(ctx, args))
		})

	register(server, "smart_metadata_sync_status", "Report enrichment coverage across the whole store",
		func(args struct{}) (*mcp.ToolResponse, error) {
			return toolResponse(surface.SmartMetadataSyncStatus(ctx))
		})

	register(server, "process_feedback_unified", "Classify feedback text and update the referenced solution's quality score",
		func(args toolsurface.FeedbackRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.ProcessFeedbackUnified(ctx, args))
		})

	register(server, "get_learning_insights", "Return aggregated quality-learning insights",
		func(args toolsurface.LearningInsightsRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.GetLearningInsights(ctx, args))
		})

	register(server, "get_system_status", "Report store reachability, cache stats, and per-operation call metrics",
		func(args toolsurface.SystemStatusRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.GetSystemStatus(ctx, args))
		})

	register(server, "get_performance_analytics_dashboard", "Report latency, cache hit rate, and error rate across operations",
		func(args struct{}) (*mcp.ToolResponse, error) {
			return toolResponse(surface.GetPerformanceAnalyticsDashboard(ctx))
		})

	register(server, "detect_current_project", "Resolve a working directory to a configured project name",
		func(args toolsurface.DetectProjectRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.DetectCurrentProject(ctx, args))
		})

	register(server, "get_project_context_summary", "Report per-project solution/feedback aggregates",
		func(args toolsurface.ProjectSummaryRequest) (*mcp.ToolResponse, error) {
			return toolResponse(surface.GetProjectContextSummary(ctx, args))
		})

	register(server, "force_database_connection_refresh", "Confirm the store backend is reachable and report its row count",
		func(args struct{}) (*mcp.ToolResponse, error) {
			return toolResponse(surface.ForceDatabaseConnectionRefresh(ctx))
		})

	if err := server.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "mcpserver: serve failed: %v\n", err)
		os.Exit(1)
	}
}

// register wraps panic-on-registration-failure, matching the teacher's
// repeated if-err-panic shape at every RegisterTool call site.
func register[T any](server *mcp.Server, name, description string, handler func(T) (*mcp.ToolResponse, error)) {
	if err := server.RegisterTool(name, description, handler); err != nil {
		panic(fmt.Sprintf("register tool %s: %v", name, err))
	}
}

// toolResponse marshals any Surface response into one text-content tool
// response, or surfaces the call's error to the MCP client.
func toolResponse(v any, err error) (*mcp.ToolResponse, error) {
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(string(data))), nil
}
