package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Engine is the boundary to the PDF library.
type Engine interface {
	PageCount(doc []byte) (int, error)
	Inspect(template []byte) (models.FieldCatalog, error)
	Fill(template []byte, values form.Form) ([]byte, error)
	Lock(doc []byte) ([]byte, error)
	Optimize(doc []byte) ([]byte, error)
}

// PDFCPUEngine implements Engine on top of pdfcpu's in-memory API.
type PDFCPUEngine struct{}

func NewPDFCPUEngine() *PDFCPUEngine {
	return &PDFCPUEngine{}
}

func newConfiguration() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func (e *PDFCPUEngine) PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}

// Inspect exports the template's form as JSON and converts it to a catalog.
func (e *PDFCPUEngine) Inspect(template []byte) (models.FieldCatalog, error) {
	var buf bytes.Buffer
	if err := api.ExportFormJSON(bytes.NewReader(template), &buf, "template.pdf", newConfiguration()); err != nil {
		return models.FieldCatalog{}, fmt.Errorf("failed to export form fields: %w", err)
	}
	var group form.FormGroup
	if err := json.Unmarshal(buf.Bytes(), &group); err != nil {
		return models.FieldCatalog{}, fmt.Errorf("failed to decode exported form: %w", err)
	}
	return catalogFromForms(group.Forms), nil
}

func catalogFromForms(forms []form.Form) models.FieldCatalog {
	var catalog models.FieldCatalog
	add := func(id, name string, kind models.FieldKind, options []string, locked bool) {
		if name == "" {
			name = id
		}
		catalog.Fields = append(catalog.Fields, models.FieldInfo{Name: name, ID: id, Kind: kind, Options: options, Locked: locked})
	}
	for _, f := range forms {
		for _, tf := range f.TextFields {
			add(tf.ID, tf.Name, models.FieldText, nil, tf.Locked)
		}
		for _, df := range f.DateFields {
			add(df.ID, df.Name, models.FieldText, nil, df.Locked)
		}
		for _, cb := range f.CheckBoxes {
			add(cb.ID, cb.Name, models.FieldCheckbox, nil, cb.Locked)
		}
		for _, rg := range f.RadioButtonGroups {
			add(rg.ID, rg.Name, models.FieldRadioGroup, rg.Options, rg.Locked)
		}
		for _, cb := range f.ComboBoxes {
			add(cb.ID, cb.Name, models.FieldDropdown, cb.Options, cb.Locked)
		}
		for _, lb := range f.ListBoxes {
			add(lb.ID, lb.Name, models.FieldListBox, lb.Options, lb.Locked)
		}
	}
	return catalog
}

func formLen(f *form.Form) int {
	return len(f.TextFields) + len(f.DateFields) + len(f.CheckBoxes) +
		len(f.RadioButtonGroups) + len(f.ComboBoxes) + len(f.ListBoxes)
}

func (e *PDFCPUEngine) Fill(template []byte, values form.Form) ([]byte, error) {
	payload, err := json.Marshal(form.FormGroup{Forms: []form.Form{values}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode form values: %w", err)
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(template), bytes.NewReader(payload), &out, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to fill form: %w", err)
	}
	return out.Bytes(), nil
}

// Lock makes every form field read-only.
func (e *PDFCPUEngine) Lock(doc []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.LockFormFields(bytes.NewReader(doc), &out, nil, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to lock form fields: %w", err)
	}
	return out.Bytes(), nil
}

func (e *PDFCPUEngine) Optimize(doc []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(doc), &out, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	return out.Bytes(), nil
}
