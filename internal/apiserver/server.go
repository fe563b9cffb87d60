// Package apiserver exposes the inbound webhook, the manual analysis API and the
// incident, lineage and cluster queries over HTTP.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/pipeline"
)

// Analyzer runs the incident pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error)
}

// IncidentReader reads stored incidents.
type IncidentReader interface {
	List() []*models.Incident
	Get(id string) (*models.Incident, error)
}

// ClusterReader reads clusters.
type ClusterReader interface {
	List() []*models.Cluster
	Get(id string) (*models.Cluster, error)
}

// LineageReader reads lineage entries.
type LineageReader interface {
	List() []*models.LineageEntry
	Get(fingerprint string) (*models.LineageEntry, error)
}

// Options configures a Server.
type Options struct {
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Analyzer  Analyzer
	Incidents IncidentReader
	Clusters  ClusterReader
	Lineage   LineageReader

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// MCPServer is mounted at /v1/mcp when set.
	MCPServer *server.MCPServer
}

// Server is the HTTP server. It implements lifecycle.Component.
type Server struct {
	opts     Options
	router   *http.ServeMux
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:   opts,
		router: http.NewServeMux(),
		logger: logging.GetLogger("api"),
	}
	s.registerHandlers()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.corsMiddleware(s.router), "faultline.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Name implements lifecycle.Component.
func (s *Server) Name() string {
	return "api-server"
}

// Start binds the port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()
	s.logger.Info("API server listening on %s", ln.Addr())
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}
