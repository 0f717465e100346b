package models

// These structs define the JSON payloads of the HTTP API and the
// storage-triggered function.

// StartJobRequest is the body of POST /api/jobs.
type StartJobRequest struct {
	DocumentType string       `json:"documentType"`
	CaseData     *CaseDataset `json:"caseData"`
	Options      *JobOptions  `json:"options,omitempty"`
}

// JobOptions tunes a single generation job.
type JobOptions struct {
	// Filename overrides the artifact file name. It must be a single plain
	// path segment; the object directory is always derived from the job.
	Filename string `json:"filename,omitempty"`
	// SkipUpload keeps the artifact local even when uploads are enabled.
	SkipUpload bool `json:"skipUpload,omitempty"`
	// KeepEditable leaves form fields unlocked.
	KeepEditable bool `json:"keepEditable,omitempty"`
}

// StartJobResponse is returned with 202 Accepted.
type StartJobResponse struct {
	JobID     string `json:"jobId"`
	Namespace string `json:"namespace"`
	StatusURL string `json:"statusUrl"`
	EventsURL string `json:"eventsUrl"`
}

// DocumentTypeInfo is one entry of GET /api/document-types.
type DocumentTypeInfo struct {
	DocumentType  string `json:"documentType"`
	Template      string `json:"template"`
	Version       string `json:"version,omitempty"`
	MappedFields  int    `json:"mappedFields"`
	CatalogFields *int   `json:"catalogFields"`
}

// GCSEvent is the data of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// CaseUpload is the JSON object dropped into the intake bucket to request
// generation without the HTTP API.
type CaseUpload struct {
	JobID        string       `json:"jobId,omitempty"`
	DocumentType string       `json:"documentType"`
	CaseData     *CaseDataset `json:"caseData"`
	Options      *JobOptions  `json:"options,omitempty"`
}
