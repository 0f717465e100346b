package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Lllllllleong/casedocflow/internal/logging"
	"github.com/Lllllllleong/casedocflow/internal/services"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeBadRequest      = "bad_request"
	codeInvalidCaseData = "invalid_case_data"
	codeUnknownDocType  = "unknown_document_type"
	codeUnknownJob      = "unknown_job"
	codeNotReady        = "artifact_not_ready"
	codeGone            = "artifact_gone"
	codeInternal        = "internal_error"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes a JSON error. Internal errors are logged in full and
// replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error("Request failed.", "status", status, "code", code, "error", message)
		message = "internal server error"
	} else {
		logger.Warn("Request rejected.", "status", status, "code", code, "error", message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}

// writeServiceError maps service errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownDocumentType):
		writeError(w, r, http.StatusBadRequest, codeUnknownDocType, err.Error())
	case errors.Is(err, services.ErrInvalidCaseData):
		writeError(w, r, http.StatusBadRequest, codeInvalidCaseData, err.Error())
	case errors.Is(err, services.ErrInvalidJobRequest):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, services.ErrUnknownJob):
		writeError(w, r, http.StatusNotFound, codeUnknownJob, "unknown job")
	case errors.Is(err, services.ErrArtifactNotReady):
		writeError(w, r, http.StatusConflict, codeNotReady, "job has not completed")
	case errors.Is(err, services.ErrArtifactUnavailable):
		writeError(w, r, http.StatusGone, codeGone, "artifact is no longer available")
	default:
		writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("Failed to write response.", "error", err)
	}
}
