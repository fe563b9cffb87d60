package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the faultline tools over MCP stdio",
	Long: `Run an MCP server on stdin/stdout. Incidents analyzed through the analyze_log
tool are kept for the lifetime of the process, or in the snapshot file when
persistence is configured.`,
	Run: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) {
	// stdout carries the protocol
	restore := logging.SetOutput(os.Stderr, os.Stderr)
	defer restore()

	cfg, err := loadConfig(cmd)
	HandleError(err, "Configuration error")
	logger := logging.GetLogger("mcp")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	HandleError(err, "Initialization error")
	HandleError(a.start(ctx), "Startup error")

	s := mcp.NewServer(mcp.ServerOptions{
		Version:   Version,
		Analyzer:  a.pipeline,
		Incidents: a.incidents,
		Clusters:  a.clusters,
		Lineage:   a.lineage,
	})
	logger.Info("Serving MCP over stdio")
	if err := s.ServeStdio(); err != nil {
		logger.Error("Stdio transport error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := a.stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
}
