// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
	"github.com/soothill/haptic-bridge/pkg/logger"
)

// APIResponse is the success envelope for all API responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the error envelope. Error holds the stable error code
// clients branch on.
type ErrorResponse struct {
	Error      string `json:"error"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := apperrors.HTTPStatus(err)
	logger.Error().Err(err).Str("code", code).Msg("Request failed")
	writeJSON(w, status, ErrorResponse{
		Error:      code,
		Detail:     err.Error(),
		StatusCode: status,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:      "method_not_allowed",
		Detail:     fmt.Sprintf("method %s not allowed", r.Method),
		StatusCode: http.StatusMethodNotAllowed,
	})
}

// handleStatus reports server and device status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	connected := s.ctrl.IsConnected()

	status := "ok"
	if !connected {
		status = "error"
	}

	data := map[string]any{
		"status":             status,
		"server_running":     true,
		"server_initialized": s.ctrl.Initialized(),
		"intiface_connected": connected,
		"client_state":       s.ctrl.ClientState(),
		"device_count":       s.ctrl.DeviceCount(),
		"has_devices":        s.ctrl.HasDevices(),
		"websocket_url":      s.ctrl.ServerURL(),
		"active_device":      s.ctrl.GetActiveDevice(),
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Server status",
		Data:    data,
	})
}

// handleDevices rescans and lists devices.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	devices, err := s.ctrl.ScanDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d devices", len(devices)),
		Data: map[string]any{
			"devices":      devices,
			"active_index": s.ctrl.ActiveIndex(),
		},
	})
}

// handleSelectDevice selects the active device by index.
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	var req DeviceSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidationError("body", nil, "invalid JSON body"))
		return
	}
	if err := s.validateStruct(req); err != nil {
		writeError(w, err)
		return
	}

	info, err := s.ctrl.SetActiveDevice(req.Index)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Selected device: %s", info.Name),
		Data:    info,
	})
}

// handleVibrate dispatches a vibrate command to the active device.
func (s *Server) handleVibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	values := r.URL.Query()
	speed, err := parseFloatParam(values, "speed", s.cfg.Device.DefaultSpeed)
	if err != nil {
		writeError(w, err)
		return
	}
	position, err := parseOptionalFloatParam(values, "position")
	if err != nil {
		writeError(w, err)
		return
	}
	duration, err := parseFloatParam(values, "duration", s.cfg.Device.DefaultDuration.Seconds())
	if err != nil {
		writeError(w, err)
		return
	}

	req := VibrateRequest{Speed: speed, Position: position, Duration: duration}
	if err := s.validateStruct(req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.ctrl.Vibrate(r.Context(), req.Speed, req.Position,
		time.Duration(req.Duration*float64(time.Second)))
	if err != nil {
		writeError(w, err)
		return
	}

	message := fmt.Sprintf("Vibrating at %.0f%% power", result.Speed*100)
	if result.Position != nil {
		message += fmt.Sprintf(", position %.0f%%", *result.Position*100)
	}
	if req.Duration > 0 {
		message += fmt.Sprintf(" for %g seconds", req.Duration)
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    result,
	})
}

// handleLinear dispatches a positional move to the active device.
func (s *Server) handleLinear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	values := r.URL.Query()
	position, err := parseFloatParam(values, "position", s.cfg.Device.DefaultPosition)
	if err != nil {
		writeError(w, err)
		return
	}
	duration, err := parseIntParam(values, "duration", 1000)
	if err != nil {
		writeError(w, err)
		return
	}

	req := LinearRequest{Position: position, Duration: duration}
	if err := s.validateStruct(req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.ctrl.Linear(r.Context(), req.Position,
		time.Duration(req.Duration)*time.Millisecond)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Moving to position %.0f%% over %dms", req.Position*100, req.Duration),
		Data:    result,
	})
}

// handleStop stops the active device.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	result, err := s.ctrl.Stop(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Device stopped",
		Data:    result,
	})
}

// handleScan scans for devices.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	devices, err := s.ctrl.ScanDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d devices", len(devices)),
		Data: map[string]any{
			"count":   len(devices),
			"devices": devices,
		},
	})
}
