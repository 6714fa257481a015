package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ewhitter/haven-core/internal/device"
	"github.com/ewhitter/haven-core/internal/rules"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - protocol: filter by protocol (zigbee, zwave, wifi, virtual)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if protocolStr := r.URL.Query().Get("protocol"); protocolStr != "" {
		devices, err := s.devices.GetDevicesByProtocol(ctx, device.Protocol(protocolStr))
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice creates a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.devices.CreateDevice(r.Context(), &dev); err != nil {
		switch {
		case isDeviceValidationError(err):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device already exists")
		default:
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.devices.UpdateDevice(r.Context(), existing); err != nil {
		if isDeviceValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.devices.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns device registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.devices.GetStats()
	writeJSON(w, http.StatusOK, stats)
}

// DeviceCommand represents a command to send to a device.
type DeviceCommand struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleControlDevice sends a command to a device via the command topic.
// This is an asynchronous operation: the command is published and the
// response is 202 Accepted with the optimistic state. The confirmed state
// arrives via the device.state WebSocket channel.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.controller == nil {
		writeInternalError(w, "device control is not available")
		return
	}

	var cmd DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Action == "" {
		writeBadRequest(w, "action field is required")
		return
	}

	result := s.controller.Control(r.Context(), id, cmd.Action, cmd.Parameters)
	if !result.Success {
		if errors.Is(result.Err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Warn("device command failed", "device_id", id, "action", cmd.Action, "error", result.Err)
		writeInternalError(w, "failed to send command")
		return
	}

	s.logger.Info("device command sent", "device_id", id, "action", cmd.Action, "parameters", cmd.Parameters)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"state":  result.State,
	})
}

// handleRunDevice starts a manual engine run scoped to a single device.
func (s *Server) handleRunDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	executionID, err := s.engine.StartDeviceRun(id)
	if err != nil {
		if errors.Is(err, rules.ErrDeviceNotFound) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to start run")
		return
	}

	s.logger.Info("manual run started", "execution_id", executionID, "scope", "device", "device_id", id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": executionID,
		"status":       "accepted",
	})
}

// isDeviceValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors, so all of them are checked.
func isDeviceValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidSlug) ||
		errors.Is(err, device.ErrInvalidDeviceType) ||
		errors.Is(err, device.ErrInvalidProtocol) ||
		errors.Is(err, device.ErrInvalidProperties)
}
