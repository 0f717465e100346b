// Package upload stores generated artifacts in a remote object store and
// creates shareable links for them. Nothing in this package returns an
// error to the job: every failure is logged and folded into an Outcome.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/gcp"
)

var (
	ErrUploadFailed       = errors.New("upload failed")
	ErrLinkCreationFailed = errors.New("link creation failed")
)

const contentTypePDF = "application/pdf"

// ObjectStore is the remote store capability the coordinator needs.
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) (location string, err error)
	// TeamLink returns a link only members of the owning team can open.
	TeamLink(ctx context.Context, objectPath string) (string, error)
	// PublicLink returns a link anyone holding it can open until expiry.
	PublicLink(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// Config controls the coordinator.
type Config struct {
	Enabled    bool
	Prefix     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	// TeamLinks is set when the store supports team-restricted links.
	TeamLinks  bool
	LinkExpiry time.Duration
}

// Outcome is the result of an upload. Path and ShareableLink serialize as
// null when absent.
type Outcome struct {
	Uploaded      bool    `json:"uploaded"`
	Path          *string `json:"path"`
	Location      string  `json:"location,omitempty"`
	ShareableLink *string `json:"shareableLink"`
	Attempts      int     `json:"attempts,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Attempt describes a failed try that is about to be retried.
type Attempt struct {
	Number  int
	Max     int
	Err     error
	Backoff time.Duration
}

// Coordinator uploads artifacts with retry and never fails the caller.
type Coordinator struct {
	store ObjectStore
	cfg   Config
}

// NewCoordinator returns a coordinator. A nil store disables uploads.
func NewCoordinator(store ObjectStore, cfg Config) *Coordinator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Coordinator{store: store, cfg: cfg}
}

// Enabled reports whether uploads will be attempted.
func (c *Coordinator) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.store != nil
}

// MaxAttempts is the number of tries Store makes before giving up.
func (c *Coordinator) MaxAttempts() int {
	if c == nil {
		return 0
	}
	return c.cfg.MaxRetries
}

// Destination returns the object path for a job's artifact:
// prefix/documentType/yyyy/mm/dd/jobID/filename. Each job owns its own
// directory, so equal filenames never share an object. Names that are not
// a single plain segment are reduced to their last element.
func (c *Coordinator) Destination(documentType, jobID, filename string, now time.Time) string {
	jobID = segment(jobID)
	filename = segment(filename)
	if filename == "" {
		filename = jobID + ".pdf"
	}
	return path.Join(c.cfg.Prefix, documentType, now.UTC().Format("2006/01/02"), jobID, filename)
}

func segment(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

// Upload stores data at destination and, on success, creates a link.
func (c *Coordinator) Upload(ctx context.Context, data []byte, destination string) Outcome {
	out := c.Store(ctx, data, destination, nil)
	if out.Uploaded {
		out.ShareableLink = c.CreateLink(ctx, *out.Path)
	}
	return out
}

// Store uploads data to destination, retrying transient failures with
// exponential backoff inside the configured timeout. onRetry, if set, is
// called before every backoff.
func (c *Coordinator) Store(ctx context.Context, data []byte, destination string, onRetry func(Attempt)) Outcome {
	if !c.Enabled() {
		return Outcome{Uploaded: false}
	}

	logCtx := slog.With("destination", destination, "size", len(data))
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	backoff := c.cfg.Backoff
	var lastErr error
	for i := 1; i <= c.cfg.MaxRetries; i++ {
		location, err := c.store.Put(ctx, destination, data, contentTypePDF)
		if err == nil {
			logCtx.Info("Artifact uploaded.", "location", location, "attempt", i)
			p := destination
			return Outcome{Uploaded: true, Path: &p, Location: location, Attempts: i}
		}
		lastErr = err

		if i == c.cfg.MaxRetries || !gcp.IsRetryable(err) {
			break
		}
		logCtx.Warn("Upload failed, will retry.", "attempt", i, "maxRetries", c.cfg.MaxRetries, "backoff", backoff.String(), "error", err)
		if onRetry != nil {
			onRetry(Attempt{Number: i + 1, Max: c.cfg.MaxRetries, Err: err, Backoff: backoff})
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			lastErr = ctx.Err()
			logCtx.Error("Context done during backoff. Aborting retries.", "error", lastErr)
			return Outcome{Uploaded: false, Attempts: i, Error: fmt.Errorf("%w: %v", ErrUploadFailed, lastErr).Error()}
		}
	}

	logCtx.Error("Upload failed after all retries.", "error", lastErr)
	return Outcome{Uploaded: false, Attempts: c.cfg.MaxRetries, Error: fmt.Errorf("%w: %v", ErrUploadFailed, lastErr).Error()}
}

// CreateLink returns a shareable link for an uploaded object, or nil when
// no link could be created. Team-restricted links are preferred when the
// store supports them; otherwise, or if that fails, a signed link is used.
func (c *Coordinator) CreateLink(ctx context.Context, objectPath string) *string {
	if !c.Enabled() {
		return nil
	}
	logCtx := slog.With("object", objectPath)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.cfg.TeamLinks {
		link, err := c.store.TeamLink(ctx, objectPath)
		if err == nil {
			return &link
		}
		logCtx.Warn("Team link unavailable, falling back to a signed link.", "error", err)
	}

	link, err := c.store.PublicLink(ctx, objectPath, c.cfg.LinkExpiry)
	if err != nil {
		logCtx.Error("Could not create shareable link.", "error", fmt.Errorf("%w: %v", ErrLinkCreationFailed, err))
		return nil
	}
	return &link
}
