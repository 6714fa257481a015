package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Rule endpoints
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Post("/run", s.handleRunAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Patch("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Post("/enable", s.handleEnableRule)
				r.Post("/disable", s.handleDisableRule)
			})
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/control", s.handleControlDevice)
				r.Post("/run", s.handleRunDevice)
			})
		})

		// Execution endpoints
		r.Route("/executions", func(r chi.Router) {
			r.Get("/active", s.handleActiveExecutions)
			r.Post("/cancel", s.handleCancelExecution)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
