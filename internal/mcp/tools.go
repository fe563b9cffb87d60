package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/pipeline"
)

const defaultIncidentLimit = 20

// AnalyzeInput is the input of analyze_log.
type AnalyzeInput struct {
	LogText    string `json:"log_text,omitempty"`
	LogKey     string `json:"log_key,omitempty"`
	IncidentID string `json:"incident_id,omitempty"`
	Repo       string `json:"repo,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
}

// AnalyzeOutput is the output of analyze_log.
type AnalyzeOutput struct {
	Incident *models.Incident      `json:"incident"`
	Gated    bool                  `json:"gated"`
	Degraded []string              `json:"degraded,omitempty"`
	Steps    []pipeline.StepResult `json:"steps"`
}

type analyzeTool struct {
	analyzer Analyzer
}

func (t *analyzeTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params AnalyzeInput
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.LogText == "" && params.LogKey == "" {
		return nil, errors.New("log_text or log_key is required")
	}

	res, err := t.analyzer.Analyze(ctx, pipeline.Submission{
		LogText:    params.LogText,
		LogKey:     params.LogKey,
		IncidentID: params.IncidentID,
		Repo:       params.Repo,
		PRNumber:   params.PRNumber,
	})
	if err != nil {
		return nil, err
	}
	return &AnalyzeOutput{
		Incident: res.Incident,
		Gated:    res.Gated,
		Degraded: res.Degraded(),
		Steps:    res.Steps,
	}, nil
}

type listIncidentsTool struct {
	incidents IncidentReader
}

func (t *listIncidentsTool) Execute(_ context.Context, input json.RawMessage) (interface{}, error) {
	var params struct {
		Limit int `json:"limit,omitempty"`
	}
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultIncidentLimit
	}

	all := t.incidents.List()
	total := len(all)
	if len(all) > params.Limit {
		all = all[:params.Limit]
	}
	return map[string]interface{}{
		"total":     total,
		"count":     len(all),
		"incidents": all,
	}, nil
}

type getIncidentTool struct {
	incidents IncidentReader
}

func (t *getIncidentTool) Execute(_ context.Context, input json.RawMessage) (interface{}, error) {
	var params struct {
		IncidentID string `json:"incident_id"`
	}
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.IncidentID == "" {
		return nil, errors.New("incident_id is required")
	}
	return t.incidents.Get(params.IncidentID)
}

type listLineageTool struct {
	lineage LineageReader
}

func (t *listLineageTool) Execute(_ context.Context, _ json.RawMessage) (interface{}, error) {
	entries := t.lineage.List()
	return map[string]interface{}{
		"count":   len(entries),
		"lineage": entries,
	}, nil
}

type getLineageTool struct {
	lineage LineageReader
}

func (t *getLineageTool) Execute(_ context.Context, input json.RawMessage) (interface{}, error) {
	var params struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := unmarshalInput(input, &params); err != nil {
		return nil, err
	}
	if params.Fingerprint == "" {
		return nil, errors.New("fingerprint is required")
	}
	return t.lineage.Get(params.Fingerprint)
}

type listClustersTool struct {
	clusters ClusterReader
}

func (t *listClustersTool) Execute(_ context.Context, _ json.RawMessage) (interface{}, error) {
	clusters := t.clusters.List()
	return map[string]interface{}{
		"count":    len(clusters),
		"clusters": clusters,
	}, nil
}

// unmarshalInput accepts an empty or null input as "no arguments".
func unmarshalInput(input json.RawMessage, v interface{}) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
