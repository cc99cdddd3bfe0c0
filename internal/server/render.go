package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
)

const conflictText = "This conversation was updated by another request. Reload it and try again."

const internalErrorText = "Something went wrong with this request. The error has been logged, and we'll work on it. For now, please try again."

type errorBody struct {
	Kind     string `json:"kind"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err for the client. Domain errors carry their fixed
// text. Anything else is a generic 500 with the detail kept in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	if derr, ok := domain.AsError(err); ok {
		AddLogField(r.Context(), "error_kind", string(derr.Kind))
		writeJSON(w, derr.HTTPStatusCode(), errorResponse{Error: errorBody{
			Kind:     string(derr.Kind),
			Category: string(derr.Category),
			Message:  derr.Message,
		}})
		return
	}

	if errors.Is(err, storage.ErrNotAppendOnly) {
		writeDenial(w, http.StatusConflict, "conflict", conflictText)
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Kind:    "internal",
		Message: internalErrorText,
	}})
}

// writeDenial renders a guard or request-validation failure.
func writeDenial(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
