// Package pdf fills form templates with mapped case values and produces the
// final, locked document.
package pdf

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// Filler drives an Engine through parse, fill, finalize and serialize.
type Filler struct {
	engine Engine
}

func NewFiller(engine Engine) *Filler {
	return &Filler{engine: engine}
}

// Document is a parsed template being filled. It is used by one job only.
type Document struct {
	engine     Engine
	template   []byte
	fields     map[string]field
	hasCatalog bool
	lockFields bool

	form      form.Form
	report    models.FillReport
	finalized []byte
	pageCount int
}

// Parse checks that template is a readable PDF and binds a field variant to
// every field of its catalog. A missing catalog is not an error; fields are
// then typed by the values set on them.
func (f *Filler) Parse(template []byte) (*Document, error) {
	pages, err := f.engine.PageCount(template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	doc := &Document{
		engine:     f.engine,
		template:   template,
		fields:     make(map[string]field),
		lockFields: true,
		pageCount:  pages,
	}

	catalog, err := f.engine.Inspect(template)
	if err != nil {
		slog.Warn("Template fields could not be introspected; typing fields by value.", "error", err)
		return doc, nil
	}
	doc.hasCatalog = true
	for _, info := range catalog.Fields {
		doc.fields[info.Name] = newField(info)
	}
	return doc, nil
}

// KeepEditable leaves the filled fields unlocked and skips the final lock.
func (d *Document) KeepEditable() {
	d.lockFields = false
}

// HasCatalog reports whether the template's fields were introspected.
func (d *Document) HasCatalog() bool { return d.hasCatalog }

// Apply sets every non-empty value. Failures are recorded per field and
// never stop the remaining fields.
func (d *Document) Apply(values models.FieldValueMap) models.FillReport {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := values[name]
		if value.IsEmpty() {
			d.report.SkippedCount++
			continue
		}

		fld, ok := d.fields[name]
		if !ok {
			if d.hasCatalog {
				d.fail(name, "", ErrUnknownField)
				continue
			}
			fld = fieldForValue(name, value)
		}

		if err := fld.setValue(&d.form, value, d.lockFields); err != nil {
			d.fail(name, string(fld.kind()), err)
			continue
		}
		d.report.FilledCount++
	}
	return d.Report()
}

func (d *Document) fail(name, kind string, err error) {
	d.report.FailedCount++
	d.report.Errors = append(d.report.Errors, models.FieldError{Field: name, Kind: kind, Reason: err.Error()})
}

// Report returns a copy of the fill counters so far.
func (d *Document) Report() models.FillReport {
	r := d.report
	r.Errors = append([]models.FieldError(nil), d.report.Errors...)
	return r
}

// Finalize writes the collected values into the template and, unless the
// document was marked editable, locks every field.
func (d *Document) Finalize() error {
	out := d.template
	if formLen(&d.form) > 0 {
		filled, err := d.engine.Fill(d.template, d.form)
		if err != nil {
			return fmt.Errorf("failed to write field values: %w", err)
		}
		out = filled
	}
	if d.lockFields {
		locked, err := d.engine.Lock(out)
		if err != nil {
			return fmt.Errorf("failed to flatten document: %w", err)
		}
		out = locked
	}
	d.finalized = out
	return nil
}

// ErrNotFinalized is returned by Serialize before Finalize succeeded.
var ErrNotFinalized = errors.New("document not finalized")

// Serialize returns the optimized artifact bytes.
func (d *Document) Serialize() ([]byte, error) {
	if d.finalized == nil {
		return nil, ErrNotFinalized
	}
	out, err := d.engine.Optimize(d.finalized)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	if n, err := d.engine.PageCount(out); err == nil {
		d.pageCount = n
	}
	return out, nil
}

// PageCount of the template, or of the artifact once serialized.
func (d *Document) PageCount() int { return d.pageCount }

// Fill runs every phase in one call.
func (f *Filler) Fill(template []byte, values models.FieldValueMap) ([]byte, models.FillReport, error) {
	doc, err := f.Parse(template)
	if err != nil {
		return nil, models.FillReport{}, err
	}
	report := doc.Apply(values)
	if err := doc.Finalize(); err != nil {
		return nil, report, err
	}
	out, err := doc.Serialize()
	if err != nil {
		return nil, report, err
	}
	return out, report, nil
}
