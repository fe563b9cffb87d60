package apiserver

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MCPEndpoint is the path of the streamable MCP endpoint.
const MCPEndpoint = "/v1/mcp"

func (s *Server) registerHandlers() {
	s.router.HandleFunc("/webhook/ci", s.withMethod(http.MethodPost, s.handleWebhook))
	s.router.HandleFunc("/analyze", s.withMethod(http.MethodPost, s.handleAnalyze))

	s.router.HandleFunc("/incidents", s.withMethod(http.MethodGet, s.handleListIncidents))
	s.router.HandleFunc("/incidents/{id}", s.withMethod(http.MethodGet, s.handleGetIncident))
	s.router.HandleFunc("/lineage", s.withMethod(http.MethodGet, s.handleListLineage))
	s.router.HandleFunc("/lineage/{fingerprint}", s.withMethod(http.MethodGet, s.handleGetLineage))
	s.router.HandleFunc("/clusters", s.withMethod(http.MethodGet, s.handleListClusters))
	s.router.HandleFunc("/clusters/{id}", s.withMethod(http.MethodGet, s.handleGetCluster))

	s.router.HandleFunc("/health", s.withMethod(http.MethodGet, s.handleHealth))
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.registerMCPHandler()
}

func (s *Server) registerMCPHandler() {
	if s.opts.MCPServer == nil {
		s.logger.Debug("MCP server not configured, skipping %s", MCPEndpoint)
		return
	}
	streamable := server.NewStreamableHTTPServer(
		s.opts.MCPServer,
		server.WithEndpointPath(MCPEndpoint),
		server.WithStateLess(true),
	)
	s.router.Handle(MCPEndpoint, streamable)
	s.logger.Info("MCP endpoint registered at %s", MCPEndpoint)
}
