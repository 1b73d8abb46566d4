package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/domain"
)

// ─── Runs ───────────────────────────────────────────────────────────────────

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.db.ListRuns(domain.RunKind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunSummary analyzes a stored run.
//
//	GET /api/runs/{id}/summary?component=cpu&baseline=default
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(id); err != nil {
		writeDomainError(w, err)
		return
	}

	name := r.URL.Query().Get("component")
	if name == "" {
		name = string(domain.ComponentTotal)
	}
	comp, err := domain.ParseComponent(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var base *domain.Baseline
	if label := r.URL.Query().Get("baseline"); label != "" {
		if base, err = s.db.GetBaseline(label); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	samples, err := s.db.RunSamples(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	report, err := analysis.BuildReport(samples, comp, base, s.thresholds, s.efficiencyRatio)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListBaselines(w http.ResponseWriter, r *http.Request) {
	list, err := s.db.ListBaselines()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.Baseline{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"baselines": list})
}

// ─── Analysis ───────────────────────────────────────────────────────────────

// analyzeRequest accepts either a bare JSON array of readings or
// {"values": [...], "unit": "W"|"mW"}.
type analyzeRequest struct {
	Values []float64 `json:"values"`
	Unit   string    `json:"unit"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req.Values); err != nil {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "expected a JSON array of readings or {\"values\": [...]}")
			return
		}
	}

	values := req.Values
	if req.Unit == "W" || req.Unit == "w" {
		values = make([]float64, len(req.Values))
		for i, v := range req.Values {
			values[i] = v * 1000
		}
	}

	sum, err := analysis.Summarize(values, s.thresholds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// powerPair is a component/total reading in mW.
type powerPair struct {
	Component float64 `json:"component_mw"`
	Total     float64 `json:"total_mw"`
}

type attributionRequest struct {
	Before      powerPair `json:"before"`
	After       powerPair `json:"after"`
	Baseline    powerPair `json:"baseline"`
	ToleranceMW float64   `json:"tolerance_mw"`
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	var req attributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	before, err := analysis.Attribute(req.Before.Component, req.Before.Total, req.Baseline.Component, req.Baseline.Total)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// The after window may legitimately sit at baseline.
	after, _ := analysis.Attribute(req.After.Component, req.After.Total, req.Baseline.Component, req.Baseline.Total)

	writeJSON(w, http.StatusOK, analysis.CompareAttribution(before, after, req.ToleranceMW))
}

// ─── Feedback ───────────────────────────────────────────────────────────────

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.db.ListFeedbackRuns(limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.FeedbackRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetFeedbackRun(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
