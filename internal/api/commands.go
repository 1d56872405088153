package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/telegate/telegate/internal/auth"
	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/telemetry"
)

// handleDeviceCommand publishes a command payload to a device.
//
// The caller authenticates with a bearer token and must be authorized for
// the target device. The JSON body is forwarded as the command payload;
// an empty body sends an empty command.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken(bearerToken(r), s.secCfg.JWT.Secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing token")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")

	allowed, err := s.access.CanAccessDevice(r.Context(), claims.Subject, deviceID)
	if err != nil {
		s.logger.Error("access check failed",
			"user_id", claims.Subject,
			"device_id", deviceID,
			"error", err,
		)
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "access denied")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "access denied")
		return
	}

	dev, err := s.registry.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
			return
		}
		s.logger.Error("device lookup failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	payload, err := decodeCommandBody(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON object")
		return
	}

	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport unavailable")
		return
	}
	if err := s.commands.SendCommand(dev.IMEI, payload); err != nil {
		if errors.Is(err, telemetry.ErrTransportUnavailable) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport unavailable")
			return
		}
		s.logger.Error("command publish failed",
			"device_id", deviceID,
			"imei", dev.IMEI,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "command delivery failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "sent",
		"deviceId": deviceID,
	})
}

// decodeCommandBody parses an optional JSON object body.
// An empty body is a valid empty command.
func decodeCommandBody(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
