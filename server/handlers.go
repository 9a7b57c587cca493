package server

import (
	"net/http"
	"strconv"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/logger"
	"github.com/promptctl/promptctl/pipeline"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 200
)

// HandleHealth reports server liveness and queue load.
// GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	pending, running := s.queue.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"pending": pending,
		"running": running,
	})
}

// HandleJobs lists recent jobs, newest first.
// GET /jobs?limit=N
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := defaultJobLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	if limit > maxJobLimit {
		limit = maxJobLimit
	}

	jobList := s.queue.GetAllJobs(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

// HandleJob serves a single job and its cancel sub-resource.
// GET /jobs/{id}
// POST /jobs/{id}/cancel
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/jobs/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	jobID := pathParts[0]

	if len(pathParts) > 1 && pathParts[1] == "cancel" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		cancelled := s.queue.Cancel(jobID)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":    jobID,
			"cancelled": cancelled,
		})
		return
	}

	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := s.queue.GetStatus(jobID)
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// saveRequest is the /save payload.
type saveRequest struct {
	Content      string   `json:"content"`
	Name         string   `json:"name,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	AutoOptimize *bool    `json:"auto_optimize,omitempty"`
	Source       string   `json:"source,omitempty"`
}

// HandleSave runs a prompt through the pipeline.
// POST /save
func (s *Server) HandleSave(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req saveRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	result := s.pipeline.ProcessPrompt(req.Content, req.Name, req.Tags, nil, req.AutoOptimize, source)
	if !result.Success {
		logger.Warnw("Save failed", "prompt_id", result.PromptID, "error", result.Error)
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleOptimize submits or runs an optimize job.
// POST /optimize
func (s *Server) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pipeline.OptimizeParams
		Async bool `json:"async"`
	}
	if !requireMethod(w, r, http.MethodPost) || readJSON(w, r, &req) != nil {
		return
	}
	if req.PromptID == "" {
		writeError(w, http.StatusBadRequest, "prompt_id is required")
		return
	}

	dispatch, err := s.pipeline.Optimize(r.Context(), req.OptimizeParams, req.Async)
	s.writeDispatch(w, dispatch, err)
}

// HandleEvaluate submits or runs an evaluate job.
// POST /evaluate
func (s *Server) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pipeline.EvaluateParams
		Async bool `json:"async"`
	}
	if !requireMethod(w, r, http.MethodPost) || readJSON(w, r, &req) != nil {
		return
	}
	if req.PromptID == "" {
		writeError(w, http.StatusBadRequest, "prompt_id is required")
		return
	}

	dispatch, err := s.pipeline.Evaluate(r.Context(), req.EvaluateParams, req.Async)
	s.writeDispatch(w, dispatch, err)
}

// HandleChain submits or runs a chain job.
// POST /chain
func (s *Server) HandleChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pipeline.ChainParams
		Async bool `json:"async"`
	}
	if !requireMethod(w, r, http.MethodPost) || readJSON(w, r, &req) != nil {
		return
	}

	dispatch, err := s.pipeline.Chain(r.Context(), req.ChainParams, req.Async)
	s.writeDispatch(w, dispatch, err)
}

// HandleAgent submits or runs an agent job.
// POST /agent
func (s *Server) HandleAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pipeline.AgentParams
		Async bool `json:"async"`
	}
	if !requireMethod(w, r, http.MethodPost) || readJSON(w, r, &req) != nil {
		return
	}
	if req.PromptID == "" {
		writeError(w, http.StatusBadRequest, "prompt_id is required")
		return
	}

	dispatch, err := s.pipeline.RunAgent(r.Context(), req.AgentParams, req.Async)
	s.writeDispatch(w, dispatch, err)
}

// writeDispatch maps a pipeline dispatch to the HTTP response: 202 for
// queued jobs, 200 with the inline result for sync runs.
func (s *Server) writeDispatch(w http.ResponseWriter, dispatch *pipeline.Dispatch, err error) {
	switch {
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsInvalidRequestError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case dispatch.JobID != "":
		writeJSON(w, http.StatusAccepted, dispatch)
	default:
		writeJSON(w, http.StatusOK, dispatch)
	}
}
