package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/faultline/internal/apiserver"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/mcp"
)

var (
	apiPort      int
	stdioEnabled bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the faultline server",
	Long: `Start the faultline server which accepts CI webhooks and manual analysis
requests, and serves incidents, lineage, clusters, metrics and MCP over HTTP.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&apiPort, "api-port", 0, "Port the API server listens on (overrides server.port)")
	serverCmd.Flags().BoolVar(&stdioEnabled, "stdio", false, "Enable stdio MCP transport alongside HTTP (default: false)")
}

func runServer(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	HandleError(err, "Configuration error")
	if apiPort > 0 {
		cfg.Server.Port = apiPort
	}

	logger := logging.GetLogger("faultline")
	logger.Info("Starting faultline %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	HandleError(err, "Initialization error")

	mcpServer := mcp.NewServer(mcp.ServerOptions{
		Version:   Version,
		Analyzer:  a.pipeline,
		Incidents: a.incidents,
		Clusters:  a.clusters,
		Lineage:   a.lineage,
	})

	apiComponent := apiserver.New(apiserver.Options{
		Port:         cfg.Server.Port,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Analyzer:     a.pipeline,
		Incidents:    a.incidents,
		Clusters:     a.clusters,
		Lineage:      a.lineage,
		Gatherer:     a.registry,
		MCPServer:    mcpServer.MCPServer(),
	})
	if err := a.manager.Register(apiComponent, a.backbone...); err != nil {
		logger.Error("Failed to register API server component: %v", err)
		HandleError(err, "API server registration error")
	}

	if err := a.start(ctx); err != nil {
		logger.Error("Failed to start components: %v", err)
		HandleError(err, "Startup error")
	}

	if stdioEnabled {
		logger.Info("Starting stdio MCP transport alongside HTTP")
		go func() {
			if err := mcpServer.ServeStdio(); err != nil {
				logger.Error("Stdio transport error: %v", err)
			}
		}()
	}

	logger.Info("Listening on %s", apiComponent.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := a.stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
}
