package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/casedocflow/internal/logging"
	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDocumentTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"documentTypes": s.jobs.DocumentTypes(r.Context()),
	})
}

// handleStartJob accepts a generation request and returns immediately.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var body models.StartJobRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.DocumentType == "" {
		writeError(w, r, http.StatusBadRequest, codeUnknownDocType, "documentType is required")
		return
	}

	req := services.JobRequest{
		DocumentType: body.DocumentType,
		CaseData:     body.CaseData,
	}
	if body.Options != nil {
		req.Options = *body.Options
	}

	jobID, err := s.jobs.StartJob(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("Job accepted.", "jobId", jobID, "documentType", body.DocumentType)
	base := jobPath(models.NamespacePDFGeneration, jobID)
	writeJSON(w, r, http.StatusAccepted, models.StartJobResponse{
		JobID:     jobID,
		Namespace: models.NamespacePDFGeneration,
		StatusURL: base,
		EventsURL: base + "/events",
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	jobID := chi.URLParam(r, "jobID")

	rec, err := s.status.GetStatus(r.Context(), namespace, jobID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, codeUnknownJob, "unknown job")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleEvents streams status records as server-sent events until the job
// reaches a terminal state or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	jobID := chi.URLParam(r, "jobID")
	logger := logging.FromContext(r.Context()).With("namespace", namespace, "jobId", jobID)

	rec, err := s.status.GetStatus(r.Context(), namespace, jobID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, codeUnknownJob, "unknown job")
		return
	}

	sub, err := s.status.Subscribe(r.Context(), namespace, jobID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logger.Warn("Streaming not supported.", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	id := 0
	for {
		select {
		case rec, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				logger.Error("Failed to encode status event.", "error", err)
				return
			}
			id++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: status\ndata: %s\n\n", id, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			logger.Debug("Event stream client disconnected.")
			return
		}
	}
}

// handleArtifact serves the generated PDF, or redirects to its link when
// the local copy is gone.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	jobID := chi.URLParam(r, "jobID")
	if namespace != models.NamespacePDFGeneration {
		writeError(w, r, http.StatusNotFound, codeUnknownJob, "no artifacts in namespace "+namespace)
		return
	}

	art, err := s.jobs.GetArtifact(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if art.Data == nil {
		http.Redirect(w, r, art.Link, http.StatusTemporaryRedirect)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		logging.FromContext(r.Context()).Warn("Failed to write artifact.", "jobId", jobID, "error", err)
	}
}

func jobPath(namespace, jobID string) string {
	return "/api/jobs/" + url.PathEscape(namespace) + "/" + url.PathEscape(jobID)
}
