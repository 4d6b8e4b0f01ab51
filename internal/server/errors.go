package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go-media-harvester/internal/queue"
	"go-media-harvester/internal/storage"

	validation "github.com/go-ozzo/ozzo-validation"
	log "github.com/sirupsen/logrus"
)

var errUnavailable = errors.New("feature not configured")

type errorResp struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	ExistingID string            `json:"existing_id,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var dup *queue.DuplicateError
	switch {
	case errors.Is(err, queue.ErrValidation), errors.Is(err, storage.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.As(err, &dup), errors.Is(err, queue.ErrJobActive):
		return http.StatusConflict
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrClosed), errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusFor(err), err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	resp := errorResp{Error: err.Error()}

	var fields validation.Errors
	if errors.As(err, &fields) {
		resp.Fields = make(map[string]string, len(fields))
		for name, fieldErr := range fields {
			resp.Fields[name] = fieldErr.Error()
		}
	}
	var dup *queue.DuplicateError
	if errors.As(err, &dup) {
		resp.ExistingID = dup.ExistingID
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Could not encode response")
	}
}
