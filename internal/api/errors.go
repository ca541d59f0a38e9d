package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/camlink-core/internal/control"
	"github.com/nerrad567/camlink-core/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeDevice         = "device_error"
	ErrCodeDeviceBusy     = "device_busy"
	ErrCodeDeviceTimeout  = "device_timeout"
	ErrCodeDeviceGone     = "device_gone"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeDeviceError maps a command failure to a response. Request errors are
// 400, a busy or timed-out device is 503/504, a lost link is 410 and any
// other device answer is 502.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case control.IsClientError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrLinkLost), errors.Is(err, device.ErrClosed):
		writeError(w, http.StatusGone, ErrCodeDeviceGone, err.Error())
	case device.CodeOf(err) == device.CodeTimeout:
		writeError(w, http.StatusGatewayTimeout, ErrCodeDeviceTimeout, err.Error())
	case device.CodeOf(err) == device.CodeBusy, errors.Is(err, device.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeDeviceBusy, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
	}
}
