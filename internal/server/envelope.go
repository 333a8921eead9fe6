package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lonalabs/lona/internal/model"
)

// writeJSON writes a success response in the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Data:      data,
	})
}

// writeList writes a list response with its total count.
func writeList(w http.ResponseWriter, r *http.Request, data any, total int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(model.ListResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Data:      data,
		Total:     total,
	})
}

// writeError writes an error response in the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		RequestID: RequestIDFromContext(r.Context()),
		Error:     model.ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// writeErr renders a service error. PlatformErrors carry their own status and
// code; anything else is an opaque 500.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var pe *model.PlatformError
	if errors.As(err, &pe) {
		writeErrorDetails(w, r, pe.Status, pe.Code, pe.Message, pe.Details)
		return
	}
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal,
		"an unexpected error occurred")
}

// decodeJSON decodes a JSON request body into the target struct, bounding the
// body size and rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

// handleDecodeError writes the canonical 400 for a malformed body.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		return
	}
	writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
		fmt.Sprintf("invalid request body: %v", err))
}
