package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/moolen/faultline/internal/incident"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/pipeline"
)

// Webhook statuses.
const (
	StatusIgnored   = "ignored"
	StatusFailed    = "analysis_failed"
	StatusCompleted = "analysis_completed"
)

// AnalyzeRequest is the body of /analyze and /webhook/ci.
type AnalyzeRequest struct {
	LogText    string `json:"log_text,omitempty"`
	LogKey     string `json:"log_key,omitempty"`
	IncidentID string `json:"incident_id,omitempty"`
	Store      bool   `json:"store,omitempty"`
	Repo       string `json:"repo,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
}

func (req AnalyzeRequest) submission() pipeline.Submission {
	return pipeline.Submission{
		LogText:    req.LogText,
		LogKey:     req.LogKey,
		IncidentID: req.IncidentID,
		Repo:       req.Repo,
		PRNumber:   req.PRNumber,
		Store:      req.Store,
	}
}

// AnalyzeResponse is returned by a completed analysis.
type AnalyzeResponse struct {
	Status     string                `json:"status"`
	IncidentID string                `json:"incident_id,omitempty"`
	Incident   *models.Incident      `json:"incident,omitempty"`
	Steps      []pipeline.StepResult `json:"steps,omitempty"`
	StoredKey  string                `json:"stored_key,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func completed(res *pipeline.Result) AnalyzeResponse {
	return AnalyzeResponse{
		Status:     StatusCompleted,
		IncidentID: res.Incident.ID,
		Incident:   res.Incident,
		Steps:      res.Steps,
		StoredKey:  res.StoredKey,
	}
}

// handleWebhook always answers 200 so CI callers never fail on analysis problems.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, AnalyzeResponse{Status: StatusIgnored, Reason: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.LogText) == "" {
		writeJSON(w, http.StatusOK, AnalyzeResponse{Status: StatusIgnored, Reason: "log_text is empty"})
		return
	}

	res, err := s.opts.Analyzer.Analyze(r.Context(), req.submission())
	if err != nil {
		s.logger.WithContext(r.Context()).WarnWithFields("webhook analysis failed",
			logging.Field("incident_id", req.IncidentID),
			logging.Field("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, AnalyzeResponse{Status: StatusFailed, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, completed(res))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.LogText) == "" && req.LogKey == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "log_text or log_key is required")
		return
	}

	res, err := s.opts.Analyzer.Analyze(r.Context(), req.submission())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, completed(res))
	case errors.Is(err, pipeline.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, pipeline.ErrLogUnavailable):
		writeError(w, http.StatusBadGateway, "LOG_UNAVAILABLE", err.Error())
	case errors.Is(err, incident.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
	default:
		s.logger.WithContext(r.Context()).ErrorWithErr("analysis failed", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) handleListIncidents(w http.ResponseWriter, _ *http.Request) {
	incidents := s.opts.Incidents.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(incidents),
		"incidents": incidents,
	})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.opts.Incidents.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleListLineage(w http.ResponseWriter, _ *http.Request) {
	entries := s.opts.Lineage.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"lineage": entries,
	})
}

func (s *Server) handleGetLineage(w http.ResponseWriter, r *http.Request) {
	entry, err := s.opts.Lineage.Get(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListClusters(w http.ResponseWriter, _ *http.Request) {
	clusters := s.opts.Clusters.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(clusters),
		"clusters": clusters,
	})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	c, err := s.opts.Clusters.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"incidents": len(s.opts.Incidents.List()),
		"clusters":  len(s.opts.Clusters.List()),
	})
}
