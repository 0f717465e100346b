// Package notify hands finished jobs to downstream systems. Delivery is at
// least once; receivers deduplicate on the job id.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

const (
	EventTypeCompleted = "com.casedocflow.job.completed"
	EventTypeFailed    = "com.casedocflow.job.failed"
)

// Notifier is told about every job that reached a terminal state.
type Notifier interface {
	Notify(ctx context.Context, rec models.JobStatusRecord) error
}

// Payload is the body sent to every receiver.
type Payload struct {
	JobID         string           `json:"jobId"`
	Namespace     string           `json:"namespace"`
	Status        models.JobStatus `json:"status"`
	DocumentType  string           `json:"documentType,omitempty"`
	Uploaded      bool             `json:"uploaded"`
	RemotePath    *string          `json:"remotePath"`
	ShareableLink *string          `json:"shareableLink"`
	SHA256        string           `json:"sha256,omitempty"`
	Error         string           `json:"error,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

func NewPayload(rec models.JobStatusRecord) Payload {
	p := Payload{
		JobID:       rec.JobID,
		Namespace:   rec.Namespace,
		Status:      rec.Status,
		Error:       rec.Error,
		CompletedAt: rec.CompletedAt,
	}
	if r := rec.Result; r != nil {
		p.DocumentType = r.DocumentType
		p.Uploaded = r.Uploaded
		p.RemotePath = r.RemotePath
		p.ShareableLink = r.ShareableLink
		p.SHA256 = r.SHA256
	}
	return p
}

func eventType(rec models.JobStatusRecord) string {
	if rec.Status == models.StatusFailed {
		return EventTypeFailed
	}
	return EventTypeCompleted
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, rec models.JobStatusRecord) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
