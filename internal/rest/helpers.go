package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/thalesfsp/ho/v2"
)

// readJSON decodes a JSON request body with a size limit.
func (h *Handlers) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
		}

		return false
	}

	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error(err, "Failed to write JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps library sentinels to HTTP statuses.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ho.ErrUnknownExperiment):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ho.ErrDuplicateExperiment),
		errors.Is(err, ho.ErrUnknownCandidate),
		errors.Is(err, ho.ErrSpaceExhausted):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ho.ErrInvalidParameter),
		errors.Is(err, ho.ErrConfiguration),
		errors.Is(err, ho.ErrInvalidComparison):
		h.writeError(w, http.StatusBadRequest, strings.TrimSpace(err.Error()))
	default:
		h.log.Error(err, "Request failed")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
