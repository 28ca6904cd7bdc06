package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/service"
)

const maxBodyBytes = 1 << 16

type addTargetRequest struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type testRequest struct {
	URL        string `json:"url"`
	Iterations int    `json:"iterations"`
}

type testResponse struct {
	URL         string          `json:"url"`
	Available   bool            `json:"available"`
	Verdict     monitor.Verdict `json:"verdict,omitempty"`
	Strategy    string          `json:"strategy,omitempty"`
	Cached      bool            `json:"cached"`
	LatencyMs   int64           `json:"latency_ms"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// addTarget handles POST /v1/targets.
func (s *Server) addTarget(w http.ResponseWriter, r *http.Request) {
	var req addTargetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := s.svc.AddTarget(r.Context(), service.AddRequest(req))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"target": target})
}

// listTargets handles GET /v1/targets?owner=.
func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.svc.ListTargets(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

// removeTarget handles DELETE /v1/targets/{key}?owner=.
func (s *Server) removeTarget(w http.ResponseWriter, r *http.Request) {
	target, err := s.svc.RemoveTarget(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target})
}

// checkNow handles POST /v1/targets/{key}/check?owner=.
func (s *Server) checkNow(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.CheckNow(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"check": record})
}

// history handles GET /v1/targets/{key}/history?limit=.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	records, err := s.svc.History(r.Context(), chi.URLParam(r, "key"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checks": records})
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// testURL handles POST /v1/test.
func (s *Server) testURL(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.svc.TestURL(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testResponse{
		URL:         result.URL,
		Available:   result.Available,
		Verdict:     result.Verdict,
		Strategy:    result.Strategy,
		Cached:      result.Cached,
		LatencyMs:   result.Latency.Milliseconds(),
		Fingerprint: result.Fingerprint,
		Error:       result.ErrorText(),
	})
}

// benchmark handles POST /v1/test/benchmark.
func (s *Server) benchmark(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.svc.Benchmark(r.Context(), req.URL, req.Iterations)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
