package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Bounds for the count query parameter.
const (
	defaultRandomCount   = 1
	maxRandomCount       = 10
	defaultDiscoverCount = 5
	maxDiscoverCount     = 20
)

const defaultCleanupAge = 720 * time.Hour

const maxBodyBytes = 1 << 20

type randomResponse struct {
	Message string         `json:"message"`
	Jobs    []submittedJob `json:"jobs"`
}

type submittedJob struct {
	JobID   string           `json:"job_id"`
	URL     string           `json:"url"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

type discoverResponse struct {
	Count   int      `json:"count"`
	URLs    []string `json:"urls"`
	Message string   `json:"message"`
}

type statsResponse struct {
	models.Stats
	Metrics metrics.Snapshot `json:"metrics"`
}

type cleanupResponse struct {
	Deleted   int    `json:"deleted"`
	OlderThan string `json:"older_than"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.deps.Submitter.Submit(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleScrapeRandom(w http.ResponseWriter, r *http.Request) {
	count, ok := countParam(w, r, defaultRandomCount, maxRandomCount)
	if !ok {
		return
	}

	results, err := s.deps.Submitter.SubmitRandom(r.Context(), count)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(results) == 0 {
		writeAPIError(w, http.StatusServiceUnavailable, APIError{
			Code:    "discovery_failed",
			Message: "Failed to discover articles",
		})
		return
	}

	jobs := make([]submittedJob, len(results))
	for i, res := range results {
		jobs[i] = submittedJob{JobID: res.JobID, URL: res.URL, Status: res.Status, Message: res.Message}
	}
	writeJSON(w, http.StatusAccepted, randomResponse{
		Message: fmt.Sprintf("Submitted %d random articles for scraping", len(jobs)),
		Jobs:    jobs,
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	count, ok := countParam(w, r, defaultDiscoverCount, maxDiscoverCount)
	if !ok {
		return
	}

	urls, err := s.deps.Submitter.Discover(r.Context(), count)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, discoverResponse{
		Count:   len(urls),
		URLs:    urls,
		Message: "Use POST /api/scrape with these URLs to extract Q&A",
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Jobs.Get(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	pairs, err := s.deps.QA.Results(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) handleListQA(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intParam(w, r, "offset", 0)
	if !ok {
		return
	}

	page, err := s.deps.QA.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.QA.Stats(r.Context(), s.deps.QueueLen())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, Metrics: s.deps.Metrics.Snapshot()})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	age := defaultCleanupAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			badRequest(w, "older_than must be a non-negative duration such as 720h")
			return
		}
		age = d
	}

	n, err := s.deps.Jobs.Cleanup(r.Context(), age)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: n, OlderThan: age.String()})
}

// countParam reads ?count, defaulting to def and clamping to 1..hi.
func countParam(w http.ResponseWriter, r *http.Request, def, hi int) (int, bool) {
	n, ok := intParam(w, r, "count", def)
	if !ok {
		return 0, false
	}
	return min(max(n, 1), hi), true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		badRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}
