package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/casedocflow/internal/mapping"
	"github.com/Lllllllleong/casedocflow/internal/schema"
	"github.com/Lllllllleong/casedocflow/internal/status"
	"github.com/Lllllllleong/casedocflow/internal/templates"
)

var (
	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrInvalidCaseData     = errors.New("invalid case data")
	ErrInvalidJobRequest   = errors.New("invalid job request")
	ErrDuplicateJob        = errors.New("job already exists")
	ErrArtifactNotReady    = errors.New("artifact not ready")
	ErrArtifactUnavailable = errors.New("artifact no longer available")
	ErrUnknownJob          = status.ErrUnknownJob
)

// GenerationError is returned by GenerateAndUpload for every fatal phase.
type GenerationError struct {
	JobID string
	Phase string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("job %s failed at %s: %v", e.JobID, e.Phase, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UserMessage is the text stored in the failed status record. It never
// contains internal detail such as file paths or stack traces.
func (e *GenerationError) UserMessage() string {
	return UserMessage(e.Err)
}

// UserMessage maps an error to a sentence fit for display.
func UserMessage(err error) string {
	var missing *mapping.RequiredFieldMissingError
	var invalid *schema.ValidationError
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("Required case information is missing: %s.", missing.SourcePath)
	case errors.As(err, &invalid), errors.Is(err, ErrInvalidCaseData):
		return "The case data is incomplete or malformed."
	case errors.Is(err, ErrUnknownDocumentType):
		return "This document type is not supported."
	case errors.Is(err, ErrInvalidJobRequest):
		return "The job id or file name is not allowed."
	case errors.Is(err, ErrDuplicateJob):
		return "A job with this id already exists."
	case errors.Is(err, templates.ErrTemplateNotFound):
		return "The document template could not be found."
	case errors.Is(err, templates.ErrTemplateUnreadable):
		return "The document template could not be read."
	case errors.Is(err, mapping.ErrInvalidMapping):
		return "The field mapping for this document type is misconfigured."
	default:
		return "The document could not be generated."
	}
}
