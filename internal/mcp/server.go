// Package mcp exposes the incident pipeline and its stores as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/pipeline"
)

// Tool is implemented by every MCP tool.
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

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

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Version   string
	Analyzer  Analyzer
	Incidents IncidentReader
	Clusters  ClusterReader
	Lineage   LineageReader
}

// Server wraps an mcp-go server with the faultline tools.
type Server struct {
	mcpServer *server.MCPServer
	tools     map[string]Tool
}

// NewServer creates the MCP server and registers its tools and prompts.
// The analyze_log tool is only registered when an Analyzer is given.
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"faultline",
			opts.Version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
		tools: make(map[string]Tool),
	}
	s.registerTools(opts)
	s.registerPrompts(opts.Incidents)
	return s
}

// MCPServer returns the underlying server for the HTTP and stdio transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// ServeStdio serves MCP over stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools(opts ServerOptions) {
	if opts.Analyzer != nil {
		s.registerTool(
			"analyze_log",
			"Analyze a CI failure log: fingerprint it, cluster it and produce a root cause analysis",
			&analyzeTool{analyzer: opts.Analyzer},
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"log_text":    map[string]interface{}{"type": "string", "description": "Raw CI log text"},
					"log_key":     map[string]interface{}{"type": "string", "description": "Object store key of a previously stored log"},
					"incident_id": map[string]interface{}{"type": "string", "description": "Optional incident id, generated when empty"},
					"repo":        map[string]interface{}{"type": "string", "description": "Repository in owner/name form"},
					"pr_number":   map[string]interface{}{"type": "integer", "description": "Pull request to comment on"},
				},
			},
		)
	}
	if opts.Incidents != nil {
		s.registerTool(
			"list_incidents",
			"List analyzed incidents, newest first",
			&listIncidentsTool{incidents: opts.Incidents},
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{"type": "integer", "description": "Maximum number of incidents (default 20)"},
				},
			},
		)
		s.registerTool(
			"get_incident",
			"Get a single incident with its analysis, confidence and regression match",
			&getIncidentTool{incidents: opts.Incidents},
			idSchema("incident_id", "Incident id"),
		)
	}
	if opts.Lineage != nil {
		s.registerTool(
			"list_lineage",
			"List failure fingerprints with their occurrence counts and affected repositories",
			&listLineageTool{lineage: opts.Lineage},
			map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		)
		s.registerTool(
			"get_lineage",
			"Get the history of one failure fingerprint",
			&getLineageTool{lineage: opts.Lineage},
			idSchema("fingerprint", "Failure fingerprint"),
		)
	}
	if opts.Clusters != nil {
		s.registerTool(
			"list_clusters",
			"List failure clusters and the incidents they group",
			&listClustersTool{clusters: opts.Clusters},
			map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		)
	}
}

func idSchema(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			name: map[string]interface{}{"type": "string", "description": description},
		},
		"required": []string{name},
	}
}

func (s *Server) registerTool(name, description string, tool Tool, inputSchema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema for tool %s: %v", name, err))
	}

	s.mcpServer.AddTool(mcp.NewToolWithRawSchema(name, description, schemaJSON), s.createToolHandler(tool))
}

func (s *Server) createToolHandler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func (s *Server) registerPrompts(incidents IncidentReader) {
	if incidents == nil {
		return
	}
	prompt := mcp.Prompt{
		Name:        "triage_incident",
		Description: "Review an analyzed CI failure and propose a fix",
		Arguments: []mcp.PromptArgument{
			{Name: "incident_id", Description: "Incident to triage", Required: true},
		},
	}

	s.mcpServer.AddPrompt(prompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		text, err := triagePrompt(incidents, request.Params.Arguments["incident_id"])
		if err != nil {
			return nil, err
		}
		return &mcp.GetPromptResult{
			Description: "CI failure triage",
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: text}},
			},
		}, nil
	})
}

func triagePrompt(incidents IncidentReader, id string) (string, error) {
	inc, err := incidents.Get(id)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Incident %s failed in %s with fingerprint %s.\n\nAnalysis:\n%s\n\n",
		inc.ID, inc.Metadata.Language, inc.Metadata.Fingerprint, inc.AnalysisText)
	if inc.RegressionOf != nil {
		text += fmt.Sprintf("This looks like a regression of incident %s (similarity %.2f).\n\n",
			inc.RegressionOf.MatchedIncident, inc.RegressionOf.Similarity)
	}
	text += "Use get_lineage to check how often this failure occurred before, then propose a concrete fix."
	return text, nil
}
