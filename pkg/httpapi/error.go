package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Error   bool           `json:"error"`
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]any) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Error:   true,
		Status:  status,
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}
