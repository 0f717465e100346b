package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/casedocflow/internal/mapping"
	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/notify"
	"github.com/Lllllllleong/casedocflow/internal/pdf"
	"github.com/Lllllllleong/casedocflow/internal/status"
	"github.com/Lllllllleong/casedocflow/internal/upload"
)

const instrumentationName = "github.com/Lllllllleong/casedocflow/internal/services"

// Phases of a generation job, in the order they are reported.
const (
	PhaseInitializing = "initializing"
	PhaseLoadTemplate = "load_template"
	PhaseParse        = "parse"
	PhaseMapFields    = "map_fields"
	PhaseFillFields   = "fill_fields"
	PhaseFinalize     = "finalize"
	PhaseSerialize    = "serialize"
	PhaseSaveArtifact = "save_artifact"
	PhaseUpload       = "upload"
	PhaseCreateLink   = "create_link"
	PhaseComplete     = "complete"
)

// phaseProgress is the cumulative percent reported once a phase is done.
var phaseProgress = map[string]int{
	PhaseInitializing: 0,
	PhaseLoadTemplate: 10,
	PhaseParse:        20,
	PhaseMapFields:    40,
	PhaseFillFields:   60,
	PhaseFinalize:     80,
	PhaseSerialize:    90,
	PhaseSaveArtifact: 92,
	PhaseUpload:       95,
	PhaseCreateLink:   97,
	PhaseComplete:     100,
}

// TemplateLoader returns template bytes by name.
type TemplateLoader interface {
	Load(ctx context.Context, name string) ([]byte, error)
	ListFields(ctx context.Context, name string) (models.FieldCatalog, bool, error)
}

// MappingSource returns the mapping configuration of a document type.
type MappingSource interface {
	Lookup(documentType string) (models.DocumentMapping, bool)
	DocumentTypes() []string
}

// GeneratorConfig wires a Generator.
type GeneratorConfig struct {
	Templates   TemplateLoader
	Mappings    MappingSource
	Filler      *pdf.Filler
	Uploader    *upload.Coordinator
	Tracker     *status.Tracker
	Notifier    notify.Notifier
	ArtifactDir string
	Now         func() time.Time
}

// Generator runs generation jobs. It is the only writer of its jobs'
// status records.
type Generator struct {
	templates   TemplateLoader
	mappings    MappingSource
	filler      *pdf.Filler
	uploader    *upload.Coordinator
	tracker     *status.Tracker
	notifier    notify.Notifier
	artifactDir string
	now         func() time.Time

	tracer      trace.Tracer
	jobsTotal   metric.Int64Counter
	jobDuration metric.Float64Histogram
	uploads     metric.Int64Counter

	wg sync.WaitGroup
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Templates == nil || cfg.Mappings == nil || cfg.Filler == nil || cfg.Tracker == nil {
		return nil, errors.New("templates, mappings, filler and tracker are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	meter := otel.Meter(instrumentationName)
	jobsTotal, err := meter.Int64Counter("casedocflow.jobs",
		metric.WithDescription("Generation jobs by terminal status."))
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs counter: %w", err)
	}
	jobDuration, err := meter.Float64Histogram("casedocflow.job.duration",
		metric.WithDescription("Wall time of generation jobs."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	uploads, err := meter.Int64Counter("casedocflow.uploads",
		metric.WithDescription("Artifact uploads by outcome."))
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads counter: %w", err)
	}

	g := &Generator{
		templates:   cfg.Templates,
		mappings:    cfg.Mappings,
		filler:      cfg.Filler,
		uploader:    cfg.Uploader,
		tracker:     cfg.Tracker,
		notifier:    cfg.Notifier,
		artifactDir: cfg.ArtifactDir,
		now:         cfg.Now,
		tracer:      otel.Tracer(instrumentationName),
		jobsTotal:   jobsTotal,
		jobDuration: jobDuration,
		uploads:     uploads,
	}
	slog.Info("Generator initialized.", "uploadEnabled", g.uploader.Enabled(), "artifactDir", cfg.ArtifactDir)
	return g, nil
}

// Options select what a job produces.
type Options struct {
	DocumentType string
	models.JobOptions
}

// GenerateAndUpload runs one job from initializing to a terminal state.
// Template, mapping, fill and serialize failures mark the job failed and
// are returned as a *GenerationError. Saving, uploading and linking never
// fail the job; their outcome is reported in the Result.
func (g *Generator) GenerateAndUpload(ctx context.Context, dataset *models.CaseDataset, jobID string, opts Options) (*models.Result, error) {
	startedAt := g.now()
	logCtx := slog.With("jobId", jobID, "documentType", opts.DocumentType)
	ctx, span := g.tracer.Start(ctx, "GenerateAndUpload", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("document.type", opts.DocumentType),
	))
	defer span.End()

	g.publish(ctx, logCtx, jobID, PhaseInitializing, "Starting document generation.")

	if err := checkNames(jobID, opts.Filename); err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseInitializing, err)
	}
	docMapping, ok := g.mappings.Lookup(opts.DocumentType)
	if !ok {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseInitializing,
			fmt.Errorf("%w: %q", ErrUnknownDocumentType, opts.DocumentType))
	}

	template, err := g.templates.Load(ctx, docMapping.Template)
	if err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseLoadTemplate, err)
	}
	g.publish(ctx, logCtx, jobID, PhaseLoadTemplate, fmt.Sprintf("Loaded template %s.", docMapping.Template))

	doc, err := g.filler.Parse(template)
	if err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseParse, err)
	}
	if opts.KeepEditable {
		doc.KeepEditable()
	}
	g.publish(ctx, logCtx, jobID, PhaseParse, "Template parsed.")

	values, err := mapping.Map(dataset, docMapping)
	if err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseMapFields, err)
	}
	g.publish(ctx, logCtx, jobID, PhaseMapFields, fmt.Sprintf("Mapped %d fields.", len(values)))

	report := doc.Apply(values)
	if report.FailedCount > 0 {
		logCtx.Warn("Some fields could not be filled.", "failed", report.FailedCount, "errors", report.Errors)
	}
	g.publish(ctx, logCtx, jobID, PhaseFillFields, fmt.Sprintf("Filled %d of %d fields.", report.FilledCount, len(values)))

	if err := doc.Finalize(); err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseFinalize, err)
	}
	g.publish(ctx, logCtx, jobID, PhaseFinalize, "Document finalized.")

	artifact, err := doc.Serialize()
	if err != nil {
		return nil, g.handleError(ctx, logCtx, jobID, opts.DocumentType, startedAt, PhaseSerialize, err)
	}
	g.publish(ctx, logCtx, jobID, PhaseSerialize, fmt.Sprintf("Serialized %d bytes.", len(artifact)))

	filename := opts.Filename
	if filename == "" {
		filename = jobID + ".pdf"
	}
	result := &models.Result{
		JobID:        jobID,
		DocumentType: opts.DocumentType,
		Filename:     filename,
		Artifact:     artifact,
		ArtifactSize: len(artifact),
		SHA256:       checksum(artifact),
		PageCount:    doc.PageCount(),
		Fill:         report,
		StartedAt:    startedAt,
	}

	g.store(ctx, logCtx, result, opts)

	result.CompletedAt = g.now()
	result.DurationMs = result.CompletedAt.Sub(startedAt).Milliseconds()
	rec, err := g.tracker.SetStatus(ctx, models.NamespacePDFGeneration, jobID, status.Update{
		Status:   models.StatusCompleted,
		Phase:    PhaseComplete,
		Progress: phaseProgress[PhaseComplete],
		Message:  completionMessage(result),
		Result:   result,
	})
	if err != nil {
		logCtx.Error("Failed to record completion.", "error", err)
	}
	g.record(ctx, opts.DocumentType, models.StatusCompleted, startedAt)
	if rec != nil {
		g.notify(ctx, logCtx, *rec)
	}
	logCtx.Info("Document generated.", "size", result.ArtifactSize, "uploaded", result.Uploaded, "durationMs", result.DurationMs)
	return result, nil
}

// store saves the artifact locally and uploads it concurrently. Once both
// are done it reports save_artifact, any upload retries, upload and
// create_link in that order. Only the local save can return an error.
func (g *Generator) store(ctx context.Context, logCtx *slog.Logger, result *models.Result, opts Options) {
	ctx, span := g.tracer.Start(ctx, "store")
	defer span.End()

	wantUpload := g.uploader.Enabled() && !opts.SkipUpload

	var (
		eg        errgroup.Group
		localPath string
		outcome   upload.Outcome
		retries   = make(chan upload.Attempt, max(g.uploader.MaxAttempts(), 1))
	)
	eg.Go(func() error {
		var err error
		localPath, err = g.saveLocal(result.JobID, result.Artifact)
		return err
	})
	if wantUpload {
		destination := g.uploader.Destination(opts.DocumentType, result.JobID, result.Filename, result.StartedAt)
		eg.Go(func() error {
			defer close(retries)
			// Upload failures are reported in outcome, never as an error.
			outcome = g.uploader.Store(ctx, result.Artifact, destination, func(a upload.Attempt) {
				retries <- a
			})
			return nil
		})
	} else {
		close(retries)
	}

	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to save artifact locally.", "error", err)
		span.RecordError(err)
		g.publish(ctx, logCtx, result.JobID, PhaseSaveArtifact, "Local save failed; continuing.")
	} else {
		result.LocalPath = localPath
		g.publish(ctx, logCtx, result.JobID, PhaseSaveArtifact, "Artifact saved.")
	}

	for a := range retries {
		g.setStatus(ctx, logCtx, result.JobID, status.Update{
			Status:   models.StatusRetrying,
			Phase:    PhaseUpload,
			Progress: phaseProgress[PhaseSaveArtifact],
			Attempt:  a.Number,
			Message:  fmt.Sprintf("Retrying upload (attempt %d of %d).", a.Number, a.Max),
		})
	}

	switch {
	case !g.uploader.Enabled():
		g.publish(ctx, logCtx, result.JobID, PhaseUpload, "Remote upload disabled; artifact kept locally.")
	case opts.SkipUpload:
		g.publish(ctx, logCtx, result.JobID, PhaseUpload, "Remote upload skipped.")
	case outcome.Uploaded:
		result.Uploaded = true
		result.RemotePath = outcome.Path
		g.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "uploaded")))
		g.publish(ctx, logCtx, result.JobID, PhaseUpload, "Artifact uploaded.")
	default:
		g.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		g.publish(ctx, logCtx, result.JobID, PhaseUpload, "Remote upload failed; artifact kept locally.")
	}

	if !result.Uploaded {
		g.publish(ctx, logCtx, result.JobID, PhaseCreateLink, "No shareable link created.")
		return
	}
	result.ShareableLink = g.uploader.CreateLink(ctx, *result.RemotePath)
	if result.ShareableLink == nil {
		g.publish(ctx, logCtx, result.JobID, PhaseCreateLink, "Shareable link could not be created.")
		return
	}
	g.publish(ctx, logCtx, result.JobID, PhaseCreateLink, "Shareable link created.")
}

// saveLocal writes the artifact to the artifact directory through a temp
// file so readers never see a partial file.
func (g *Generator) saveLocal(jobID string, data []byte) (string, error) {
	if g.artifactDir == "" {
		return "", errors.New("no artifact directory configured")
	}
	if err := os.MkdirAll(g.artifactDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(g.artifactDir, jobID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	dest := filepath.Join(g.artifactDir, jobID+".pdf")
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return dest, nil
}

func (g *Generator) publish(ctx context.Context, logCtx *slog.Logger, jobID, phase, message string) {
	trace.SpanFromContext(ctx).AddEvent(phase)
	g.setStatus(ctx, logCtx, jobID, status.Update{
		Status:   models.StatusProcessing,
		Phase:    phase,
		Progress: phaseProgress[phase],
		Message:  message,
	})
}

func (g *Generator) setStatus(ctx context.Context, logCtx *slog.Logger, jobID string, u status.Update) {
	if _, err := g.tracker.SetStatus(ctx, models.NamespacePDFGeneration, jobID, u); err != nil {
		logCtx.Error("Failed to update job status.", "phase", u.Phase, "error", err)
	}
}

// handleError marks the job failed and returns the error for the caller.
func (g *Generator) handleError(ctx context.Context, logCtx *slog.Logger, jobID, documentType string, startedAt time.Time, phase string, originalErr error) error {
	genErr := &GenerationError{JobID: jobID, Phase: phase, Err: originalErr}
	logCtx.Error("Document generation failed.", "phase", phase, "error", originalErr)

	span := trace.SpanFromContext(ctx)
	span.RecordError(originalErr)
	span.SetStatus(codes.Error, phase)

	rec, err := g.tracker.SetStatus(ctx, models.NamespacePDFGeneration, jobID, status.Update{
		Status:  models.StatusFailed,
		Phase:   phase,
		Message: fmt.Sprintf("Generation failed during %s.", phase),
		Error:   genErr.UserMessage(),
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to record FAILED status after a processing error.", "updateError", err)
	}
	g.record(ctx, documentType, models.StatusFailed, startedAt)
	if rec != nil {
		g.notify(ctx, logCtx, *rec)
	}
	return genErr
}

func (g *Generator) record(ctx context.Context, documentType string, s models.JobStatus, startedAt time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("document_type", documentType),
		attribute.String("status", string(s)),
	)
	g.jobsTotal.Add(ctx, 1, attrs)
	g.jobDuration.Record(ctx, g.now().Sub(startedAt).Seconds(), attrs)
}

func (g *Generator) notify(ctx context.Context, logCtx *slog.Logger, rec models.JobStatusRecord) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, rec); err != nil {
		logCtx.Warn("Failed to notify downstream of job outcome.", "error", err)
	}
}

func completionMessage(r *models.Result) string {
	if r.Uploaded {
		return "Document generated and uploaded."
	}
	return "Document generated; not archived remotely."
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
