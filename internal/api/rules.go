package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ewhitter/haven-core/internal/rules"
)

// handleListRules returns all rules, with optional query filters.
//
// Query parameters:
//   - enabled: "true" returns only enabled rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("enabled") == "true" {
		list, err := s.rules.ListEnabled(ctx)
		if err != nil {
			writeInternalError(w, "failed to list rules")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": list, "count": len(list)})
		return
	}

	list, err := s.rules.ListRules(ctx)
	if err != nil {
		writeInternalError(w, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "count": len(list)})
}

// handleGetRule returns a single rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a new rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.rules.CreateRule(r.Context(), &rule)
	if err != nil {
		switch {
		case isRuleValidationError(err):
			writeBadRequest(w, err.Error())
		case errors.Is(err, rules.ErrRuleExists):
			writeConflict(w, "rule already exists")
		default:
			writeInternalError(w, "failed to create rule")
		}
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateRule partially updates a rule.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Get existing rule, then decode the partial update onto it
	existing, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	updated, err := s.rules.UpdateRule(r.Context(), existing)
	if err != nil {
		switch {
		case isRuleValidationError(err):
			writeBadRequest(w, err.Error())
		case errors.Is(err, rules.ErrRuleNotFound):
			writeNotFound(w, "rule not found")
		default:
			writeInternalError(w, "failed to update rule")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRule removes a rule by ID.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEnableRule marks a rule as enabled.
func (s *Server) handleEnableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, r, true)
}

// handleDisableRule marks a rule as disabled.
func (s *Server) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, r, false)
}

func (s *Server) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := chi.URLParam(r, "id")

	rule, err := s.rules.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to update rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleRunAll starts a manual engine run over every registered device.
//
// The run executes in the background; the response carries the execution ID
// so the caller can track progress via GET /executions/active or the
// WebSocket executions channel.
func (s *Server) handleRunAll(w http.ResponseWriter, _ *http.Request) {
	executionID := s.engine.StartAllRun()

	s.logger.Info("manual run started", "execution_id", executionID, "scope", "all")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": executionID,
		"status":       "accepted",
	})
}

// isRuleValidationError checks whether an error is a rule validation error.
// ValidateRule wraps several sentinel errors, so all of them are checked.
func isRuleValidationError(err error) bool {
	return errors.Is(err, rules.ErrInvalidRule) ||
		errors.Is(err, rules.ErrInvalidCondition) ||
		errors.Is(err, rules.ErrInvalidAction) ||
		errors.Is(err, rules.ErrNoActions)
}
