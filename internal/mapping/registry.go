package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/schema"
)

// Registry holds the mapping configuration of every document type. It is
// built once at start-up and never mutated, so it is safe for concurrent use.
type Registry struct {
	version   string
	documents map[string]models.DocumentMapping
}

// NewRegistry validates docs and returns a registry over a private copy.
func NewRegistry(version string, docs map[string]models.DocumentMapping) (*Registry, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no document types configured", ErrInvalidMapping)
	}

	var problems []string
	copied := make(map[string]models.DocumentMapping, len(docs))
	for docType, doc := range docs {
		doc.DocumentType = docType
		problems = append(problems, validateDocument(doc)...)
		doc.Fields = append([]models.MappingEntry(nil), doc.Fields...)
		copied[docType] = doc
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidMapping, strings.Join(problems, "\n  - "))
	}

	return &Registry{version: version, documents: copied}, nil
}

func validateDocument(doc models.DocumentMapping) []string {
	var problems []string
	if strings.TrimSpace(doc.Template) == "" {
		problems = append(problems, fmt.Sprintf("%s: template is required", doc.DocumentType))
	}
	seen := make(map[string]bool, len(doc.Fields))
	for i, f := range doc.Fields {
		where := fmt.Sprintf("%s: fields[%d]", doc.DocumentType, i)
		if _, err := parsePath(f.SourcePath); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
		}
		if f.DestinationField == "" {
			problems = append(problems, where+": destinationField is required")
		} else if seen[f.DestinationField] {
			problems = append(problems, fmt.Sprintf("%s: destinationField %q mapped twice", where, f.DestinationField))
		}
		seen[f.DestinationField] = true

		switch f.Transform {
		case "", models.TransformJoin, models.TransformCityZip:
		case models.TransformTruncate:
			if f.MaxLength <= 0 {
				problems = append(problems, where+": truncate needs a positive maxLength")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown transform %q", where, f.Transform))
		}
		if f.MaxLength < 0 {
			problems = append(problems, where+": maxLength must not be negative")
		}
	}
	return problems
}

// LoadFile reads a mapping file, checks it against the mapping schema and
// builds a registry from it.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a registry from the JSON form of a mapping file.
func Parse(raw []byte) (*Registry, error) {
	if err := ValidateMappingJSON(raw); err != nil {
		return nil, err
	}
	var file models.MappingFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode mapping file: %w", err)
	}
	reg, err := NewRegistry(file.Version, file.Documents)
	if err != nil {
		return nil, err
	}
	slog.Info("Field mapping configuration loaded.", "version", file.Version, "documentTypes", len(file.Documents))
	return reg, nil
}

// ValidateMappingJSON checks raw against the mapping file schema.
func ValidateMappingJSON(raw []byte) error {
	if err := schema.Validate(schema.Mapping, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return nil
}

// Lookup returns the mapping for a document type.
func (r *Registry) Lookup(documentType string) (models.DocumentMapping, bool) {
	doc, ok := r.documents[documentType]
	return doc, ok
}

// DocumentTypes lists the configured document types in sorted order.
func (r *Registry) DocumentTypes() []string {
	out := make([]string, 0, len(r.documents))
	for k := range r.documents {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Templates lists the distinct template names referenced by the registry.
func (r *Registry) Templates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, doc := range r.documents {
		if !seen[doc.Template] {
			seen[doc.Template] = true
			out = append(out, doc.Template)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Version() string { return r.version }
