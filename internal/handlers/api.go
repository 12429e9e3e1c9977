package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
)

// APIHandler serves the service-level endpoints
type APIHandler struct {
	logger arbor.ILogger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{logger: logger}
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "penman",
	})
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
	})
}

// NotFoundHandler is the catch-all for unknown API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Unknown API route: "+r.URL.Path)
}
