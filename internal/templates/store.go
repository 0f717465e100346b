// Package templates loads named document templates and, where the format
// allows, their field catalogs.
package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

var (
	// ErrTemplateNotFound means no path is registered for the name, or the
	// registered path does not exist.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateUnreadable means the template exists but cannot be read,
	// is empty, or is not a regular file.
	ErrTemplateUnreadable = errors.New("template unreadable")
)

// Info is what a Source knows about a template path without reading it.
type Info struct {
	Size     int64
	Regular  bool
	Location string
}

// Source reads template bytes from a backing store. Missing paths must be
// reported with an error wrapping fs.ErrNotExist.
type Source interface {
	// Path returns the source-specific path of a template name.
	Path(name string) string
	Stat(ctx context.Context, path string) (Info, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// Inspector extracts the form field catalog from template bytes.
type Inspector interface {
	Inspect(template []byte) (models.FieldCatalog, error)
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Source       Source
	Inspector    Inspector
	SoftMaxBytes int64
}

// Store resolves template names to paths and loads them. The path table is
// filled by Register during start-up and is read-only afterwards.
type Store struct {
	source       Source
	inspector    Inspector
	softMaxBytes int64
	paths        map[string]string
}

func NewStore(cfg StoreConfig) *Store {
	return &Store{
		source:       cfg.Source,
		inspector:    cfg.Inspector,
		softMaxBytes: cfg.SoftMaxBytes,
		paths:        make(map[string]string),
	}
}

// Register maps name to its conventional path in the source.
func (s *Store) Register(name string) {
	s.RegisterPath(name, s.source.Path(name))
}

// RegisterPath maps name to an explicit path.
func (s *Store) RegisterPath(name, path string) {
	s.paths[name] = path
}

// Names lists the registered template names.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.paths))
	for name := range s.paths {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks that path exists, is a readable regular file and is not
// empty. Templates above the soft ceiling only produce a warning.
func (s *Store) Validate(ctx context.Context, path string) error {
	info, err := s.source.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrTemplateUnreadable, path, err)
	}
	if !info.Regular {
		return fmt.Errorf("%w: %s is not a regular file", ErrTemplateUnreadable, info.Location)
	}
	if info.Size == 0 {
		return fmt.Errorf("%w: %s is empty", ErrTemplateUnreadable, info.Location)
	}
	if s.softMaxBytes > 0 && info.Size > s.softMaxBytes {
		slog.Warn("Template exceeds the configured size ceiling.", "location", info.Location, "size", info.Size, "ceiling", s.softMaxBytes)
	}
	return nil
}

// Load returns the bytes of the named template. Every call reads the
// template afresh.
func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	path, ok := s.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: no path registered for %q", ErrTemplateNotFound, name)
	}
	if err := s.Validate(ctx, path); err != nil {
		return nil, err
	}
	data, err := s.source.Read(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateUnreadable, path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrTemplateUnreadable, path)
	}
	return data, nil
}

// ListFields returns the field catalog of the named template. ok is false
// when the catalog cannot be introspected; callers then rely on the mapping
// configuration alone. err is only set when the template itself cannot be
// loaded.
func (s *Store) ListFields(ctx context.Context, name string) (catalog models.FieldCatalog, ok bool, err error) {
	data, err := s.Load(ctx, name)
	if err != nil {
		return models.FieldCatalog{}, false, err
	}
	if s.inspector == nil {
		return models.FieldCatalog{}, false, nil
	}
	catalog, err = s.inspector.Inspect(data)
	if err != nil {
		slog.Warn("Template field catalog is not available.", "template", name, "error", err)
		return models.FieldCatalog{}, false, nil
	}
	return catalog, true, nil
}
