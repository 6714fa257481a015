package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ewhitter/haven-core/internal/rules"
)

// CancelRequest is the body for POST /executions/cancel.
// An empty or absent execution_id cancels every running execution.
type CancelRequest struct {
	ExecutionID string `json:"execution_id,omitempty"`
}

// handleActiveExecutions returns the current execution summary: totals,
// counts by status, and per-execution snapshots, newest first. Finished
// executions remain visible until the retention window expires.
func (s *Server) handleActiveExecutions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ActiveExecutions())
}

// handleCancelExecution requests cooperative cancellation of one execution,
// or of all running executions when no ID is given. Cancellation takes
// effect at the next checkpoint; the response only acknowledges the request.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.Cancel(req.ExecutionID); err != nil {
		if errors.Is(err, rules.ErrExecutionNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		writeInternalError(w, "failed to cancel execution")
		return
	}

	scope := "all"
	if req.ExecutionID != "" {
		scope = req.ExecutionID
	}
	s.logger.Info("cancellation requested", "execution", scope)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "cancellation_requested",
	})
}
