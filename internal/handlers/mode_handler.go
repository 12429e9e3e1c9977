package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/mode"
	"github.com/penmanapp/penman/internal/status"
)

// ModeHandler serves the execution mode endpoints. A mode change also
// retunes the dashboard poll cadence.
type ModeHandler struct {
	mode        *mode.Controller
	distributor *status.Distributor
	logger      arbor.ILogger
}

// NewModeHandler creates a new mode handler
func NewModeHandler(modeCtrl *mode.Controller, distributor *status.Distributor, logger arbor.ILogger) *ModeHandler {
	return &ModeHandler{
		mode:        modeCtrl,
		distributor: distributor,
		logger:      logger,
	}
}

// ModeHandler handles GET and PUT /api/mode
func (h *ModeHandler) ModeHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMode(w, r)
	case http.MethodPut:
		h.setMode(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ModeHandler) getMode(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mode":                  h.mode.Mode(),
		"poll_interval_seconds": int(h.mode.PollInterval().Seconds()),
	})
}

func (h *ModeHandler) setMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var automatic bool
	switch body.Mode {
	case mode.ModeAutomatic:
		automatic = true
	case mode.ModeManual:
		automatic = false
	default:
		WriteError(w, http.StatusBadRequest, "mode must be \"automatic\" or \"manual\"")
		return
	}

	if err := h.mode.SetAutomatic(r.Context(), automatic); err != nil {
		h.logger.Error().Err(err).Msg("Failed to switch execution mode")
		WriteError(w, http.StatusInternalServerError, "Failed to switch execution mode")
		return
	}

	if h.distributor != nil {
		h.distributor.SetPollInterval(h.mode.PollInterval())
	}

	h.getMode(w, r)
}
