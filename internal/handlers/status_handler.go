package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/mode"
)

// StatusHandler serves the application status snapshot
type StatusHandler struct {
	queue  interfaces.JobQueue
	mode   *mode.Controller
	logger arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(jobQueue interfaces.JobQueue, modeCtrl *mode.Controller, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:  jobQueue,
		mode:   modeCtrl,
		logger: logger,
	}
}

// GetStatusHandler handles GET /api/status - queue stats plus execution mode
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue stats")
		WriteError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "penman",
		"version": common.GetVersion(),
		"mode":    h.mode.Mode(),
		"queue":   stats,
	})
}
