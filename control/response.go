package control

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opd-ai/toxcall/call"
	"github.com/sirupsen/logrus"
)

// APIResponse is the envelope of every control response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Error: message})
}

func writeCallError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps call errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, call.ErrInvalidPeer), errors.Is(err, call.ErrMissingOffer):
		return http.StatusBadRequest
	case errors.Is(err, call.ErrNoActiveCall):
		return http.StatusNotFound
	case errors.Is(err, call.ErrCallInProgress),
		errors.Is(err, call.ErrSessionConflict),
		errors.Is(err, call.ErrSetupCancelled):
		return http.StatusConflict
	case errors.Is(err, call.ErrSignalingUnavailable), errors.Is(err, call.ErrMediaUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
