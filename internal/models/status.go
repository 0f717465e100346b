package models

import "time"

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusRetrying   JobStatus = "retrying"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further updates may follow s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Namespaces partition the status keyspace by job family.
const (
	NamespacePDFGeneration     = "pdf-generation"
	NamespaceCaseNormalization = "case-normalization"
)

// JobStatusRecord is the current state of one job as seen by pollers and
// stream listeners.
type JobStatusRecord struct {
	JobID           string     `json:"jobId"`
	Namespace       string     `json:"namespace"`
	Status          JobStatus  `json:"status"`
	Phase           string     `json:"phase"`
	ProgressPercent int        `json:"progressPercent"`
	Message         string     `json:"message,omitempty"`
	Attempt         int        `json:"attempt,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	Result          *Result    `json:"result,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
}

// IsTerminal reports whether the record is completed or failed.
func (r *JobStatusRecord) IsTerminal() bool {
	return r != nil && r.Status.IsTerminal()
}

// Result describes the artifact produced by a completed job. RemotePath and
// ShareableLink serialize as null when absent.
type Result struct {
	JobID         string     `json:"jobId"`
	DocumentType  string     `json:"documentType"`
	Filename      string     `json:"filename"`
	Artifact      []byte     `json:"-"`
	ArtifactSize  int        `json:"artifactSize"`
	SHA256        string     `json:"sha256"`
	PageCount     int        `json:"pageCount,omitempty"`
	LocalPath     string     `json:"localPath,omitempty"`
	Uploaded      bool       `json:"uploaded"`
	RemotePath    *string    `json:"remotePath"`
	ShareableLink *string    `json:"shareableLink"`
	Fill          FillReport `json:"fill"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   time.Time  `json:"completedAt"`
	DurationMs    int64      `json:"durationMs"`
}

// WithoutArtifact returns a copy safe to keep in the status store.
func (r *Result) WithoutArtifact() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Artifact = nil
	return &cp
}

// FillReport counts per-field outcomes of a fill.
type FillReport struct {
	FilledCount  int          `json:"filledCount"`
	FailedCount  int          `json:"failedCount"`
	SkippedCount int          `json:"skippedCount"`
	Errors       []FieldError `json:"errors,omitempty"`
}

// FieldError records why one field could not be set.
type FieldError struct {
	Field  string `json:"field"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason"`
}
