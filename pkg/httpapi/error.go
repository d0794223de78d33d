package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/iota-uz/assetdesk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteServiceError maps a coded error onto the envelope, using fallback when err carries no code.
func WriteServiceError(w http.ResponseWriter, status int, fallback string, err error, requestID string) error {
	code := serrors.Code(err)
	if code == "" {
		code = fallback
	}
	var meta map[string]string
	if requestID != "" {
		meta = map[string]string{"request_id": requestID}
	}
	return WriteError(w, status, code, err.Error(), meta)
}
