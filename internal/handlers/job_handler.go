// -----------------------------------------------------------------------
// Job Handler - submission and job lifecycle endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/mode"
	"github.com/penmanapp/penman/internal/models"
	"github.com/penmanapp/penman/internal/queue"
)

// JobHandler serves the submission and job lifecycle endpoints
type JobHandler struct {
	queue  interfaces.JobQueue
	mode   *mode.Controller
	config *common.QueueConfig
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobQueue interfaces.JobQueue, modeCtrl *mode.Controller, config *common.QueueConfig, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queue:  jobQueue,
		mode:   modeCtrl,
		config: config,
		logger: logger,
	}
}

// SubmitPostHandler handles POST /api/posts - enqueue a generation job
func (h *JobHandler) SubmitPostHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var payload models.Submission
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), payload)
	if err != nil {
		if errors.Is(err, queue.ErrValidation) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to enqueue job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusPending),
	})
}

// ListJobsHandler handles GET /api/jobs - filtered, paginated job listing
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	page, perPage := GetPaginationParams(r, h.config.DefaultPerPage, h.config.MaxPerPage)
	opts := &interfaces.JobListOptions{
		Status:    r.URL.Query().Get("status"),
		CreatedBy: r.URL.Query().Get("created_by"),
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	}

	jobs, total, err := h.queue.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":     jobs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.queue.Cancel(r.Context(), jobID); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	WriteSuccess(w, "Job cancelled")
}

// RetryJobHandler handles POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.queue.Retry(r.Context(), jobID); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	WriteSuccess(w, "Job queued for retry")
}

// RunJobHandler handles POST /api/jobs/{id}/run - manual-mode run trigger
func (h *JobHandler) RunJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.mode.RunNow(r.Context(), jobID); err != nil {
		if errors.Is(err, mode.ErrManualOnly) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Job started",
	})
}

func (h *JobHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, queue.ErrCancelRefused):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrInvalidTransition):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Job lifecycle operation failed")
		WriteError(w, http.StatusInternalServerError, "Operation failed")
	}
}
