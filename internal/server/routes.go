package server

import (
	"net/http"
	"strings"
)

// setupRoutes registers every HTTP route
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket status delivery
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Submission
	mux.HandleFunc("/api/posts", s.app.JobHandler.SubmitPostHandler) // POST - enqueue a generation job

	// Job lifecycle
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler) // GET - filtered, paginated listing
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)               // GET /{id}, POST /{id}/cancel|retry|run

	// Execution mode and status
	mux.HandleFunc("/api/mode", s.app.ModeHandler.ModeHandler)           // GET/PUT - execution mode
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)  // GET - queue stats snapshot
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)      // GET
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)        // GET

	// Catch-all for unknown API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes dispatches /api/jobs/{id} and its action sub-paths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	parts := strings.Split(path, "/")
	jobID := parts[0]

	if len(parts) == 1 {
		s.app.JobHandler.GetJobHandler(w, r, jobID)
		return
	}

	switch parts[1] {
	case "cancel":
		s.app.JobHandler.CancelJobHandler(w, r, jobID)
	case "retry":
		s.app.JobHandler.RetryJobHandler(w, r, jobID)
	case "run":
		s.app.JobHandler.RunJobHandler(w, r, jobID)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
