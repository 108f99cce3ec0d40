// Package response writes the JSON bodies and error envelopes of the TC API.
package response

import (
	"bytes"
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// JSON encodes data and writes it with statusCode. The body is encoded
// before the header is sent so an encode failure can still become a 500.
// A nil data writes the status alone.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	if data == nil {
		w.WriteHeader(statusCode)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"` + ErrCodeInternalServer + `","message":"failed to encode response"}}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes the error envelope.
func Error(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	ErrorWithDetails(w, statusCode, code, message, nil, requestID)
}

// ErrorWithDetails writes the error envelope with per-field details.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]any, requestID string) {
	JSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}
