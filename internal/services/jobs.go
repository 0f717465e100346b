package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/schema"
	"github.com/Lllllllleong/casedocflow/internal/status"
)

// JobRequest asks for one document. JobID is generated when empty.
type JobRequest struct {
	JobID        string
	DocumentType string
	CaseData     *models.CaseDataset
	Options      models.JobOptions
}

// StartJob validates the request, records the job as pending and runs it
// in the background. The job keeps running after ctx is cancelled. A job
// id that already has a live record is not started again; its id is
// returned as if it had been.
func (g *Generator) StartJob(ctx context.Context, req JobRequest) (string, error) {
	if err := g.validate(req); err != nil {
		return "", err
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if err := g.create(ctx, jobID); err != nil {
		if errors.Is(err, ErrDuplicateJob) {
			return jobID, nil
		}
		return "", err
	}

	opts := Options{DocumentType: req.DocumentType, JobOptions: req.Options}
	jobCtx := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		// Errors are already recorded as the job's failed status.
		_, _ = g.GenerateAndUpload(jobCtx, req.CaseData, jobID, opts)
	}()
	return jobID, nil
}

// Run executes a job synchronously. It is used where the caller's lifetime
// bounds the job, such as a storage-triggered function. A redelivered
// request for a live job id returns ErrDuplicateJob without running.
func (g *Generator) Run(ctx context.Context, req JobRequest) (*models.Result, error) {
	if err := g.validate(req); err != nil {
		return nil, err
	}
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if err := g.create(ctx, jobID); err != nil {
		return nil, err
	}
	return g.GenerateAndUpload(ctx, req.CaseData, jobID, Options{DocumentType: req.DocumentType, JobOptions: req.Options})
}

// create claims jobID by writing its pending record.
func (g *Generator) create(ctx context.Context, jobID string) error {
	_, err := g.tracker.Create(ctx, models.NamespacePDFGeneration, jobID, "Queued for generation.")
	switch {
	case errors.Is(err, status.ErrJobExists):
		slog.Info("Job already known. Skipping.", "jobId", jobID)
		return fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	case err != nil:
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// plainName is what a job id or file name must look like: it becomes one
// segment of a local file path and of a remote object path.
var plainName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// checkNames rejects a job id or filename that could leave its directory.
// Empty values are allowed; defaults are filled in later.
func checkNames(jobID, filename string) error {
	for _, n := range []struct{ what, name string }{{"job id", jobID}, {"filename", filename}} {
		if n.name == "" {
			continue
		}
		if !plainName.MatchString(n.name) || strings.Contains(n.name, "..") {
			return fmt.Errorf("%w: %s %q must be a plain name of letters, digits, '.', '_' and '-'", ErrInvalidJobRequest, n.what, n.name)
		}
	}
	return nil
}

func (g *Generator) validate(req JobRequest) error {
	if err := checkNames(req.JobID, req.Options.Filename); err != nil {
		return err
	}
	if req.CaseData == nil {
		return fmt.Errorf("%w: case data is required", ErrInvalidCaseData)
	}
	if _, ok := g.mappings.Lookup(req.DocumentType); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDocumentType, req.DocumentType)
	}
	if err := schema.ValidateValue(schema.CaseDataset, req.CaseData); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCaseData, err)
	}
	return nil
}

// Wait blocks until every started job has finished or ctx is done.
func (g *Generator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Artifact is what GetArtifact returns: the bytes when a local copy
// exists, otherwise the shareable link.
type Artifact struct {
	Filename string
	Data     []byte
	Link     string
}

// GetArtifact returns the artifact of a completed job.
func (g *Generator) GetArtifact(ctx context.Context, jobID string) (*Artifact, error) {
	rec, err := g.tracker.GetStatus(ctx, models.NamespacePDFGeneration, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if rec.Status != models.StatusCompleted || rec.Result == nil {
		return nil, fmt.Errorf("%w: job %s is %s", ErrArtifactNotReady, jobID, rec.Status)
	}

	res := rec.Result
	if res.LocalPath != "" {
		data, err := os.ReadFile(res.LocalPath)
		if err == nil {
			return &Artifact{Filename: res.Filename, Data: data}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
		slog.Warn("Local artifact is gone.", "jobId", jobID, "path", res.LocalPath)
	}
	if res.ShareableLink != nil {
		return &Artifact{Filename: res.Filename, Link: *res.ShareableLink}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrArtifactUnavailable, jobID)
}

// DocumentTypes lists every configured document type. Catalog sizes are
// best effort and nil when the template cannot be introspected.
func (g *Generator) DocumentTypes(ctx context.Context) []models.DocumentTypeInfo {
	types := g.mappings.DocumentTypes()
	out := make([]models.DocumentTypeInfo, 0, len(types))
	for _, dt := range types {
		m, _ := g.mappings.Lookup(dt)
		info := models.DocumentTypeInfo{
			DocumentType: dt,
			Template:     m.Template,
			Version:      m.Version,
			MappedFields: len(m.Fields),
		}
		catalog, ok, err := g.templates.ListFields(ctx, m.Template)
		if err != nil {
			slog.Warn("Template unavailable while listing document types.", "documentType", dt, "error", err)
		} else if ok {
			n := len(catalog.Fields)
			info.CatalogFields = &n
		}
		out = append(out, info)
	}
	return out
}
