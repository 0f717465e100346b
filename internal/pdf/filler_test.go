package pdf

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

type fakeEngine struct {
	catalog    models.FieldCatalog
	inspectErr error
	pageErr    error
	fillErr    error
	lockErr    error

	filled    *form.Form
	lockCalls int
}

func (e *fakeEngine) PageCount([]byte) (int, error) {
	if e.pageErr != nil {
		return 0, e.pageErr
	}
	return 2, nil
}

func (e *fakeEngine) Inspect([]byte) (models.FieldCatalog, error) {
	return e.catalog, e.inspectErr
}

func (e *fakeEngine) Fill(template []byte, values form.Form) ([]byte, error) {
	if e.fillErr != nil {
		return nil, e.fillErr
	}
	e.filled = &values
	return append(append([]byte{}, template...), " filled"...), nil
}

func (e *fakeEngine) Lock(doc []byte) ([]byte, error) {
	if e.lockErr != nil {
		return nil, e.lockErr
	}
	e.lockCalls++
	return append(append([]byte{}, doc...), " locked"...), nil
}

func (e *fakeEngine) Optimize(doc []byte) ([]byte, error) {
	return doc, nil
}

func courtFormCatalog() models.FieldCatalog {
	return models.FieldCatalog{Fields: []models.FieldInfo{
		{Name: "plaintiff_names", ID: "10", Kind: models.FieldText},
		{Name: "issue_mold", ID: "11", Kind: models.FieldCheckbox},
		{Name: "county", ID: "12", Kind: models.FieldDropdown, Options: []string{"Alameda", "Fresno"}},
		{Name: "party_type", ID: "13", Kind: models.FieldRadioGroup, Options: []string{"Individual", "Business"}},
	}}
}

func TestFill_SetsFieldsByKind(t *testing.T) {
	engine := &fakeEngine{catalog: courtFormCatalog()}
	out, report, err := NewFiller(engine).Fill([]byte("%PDF"), models.FieldValueMap{
		"plaintiff_names": models.TextValue("Jane Doe; John Doe"),
		"issue_mold":      models.BoolValue(true),
		"county":          models.TextValue("alameda"),
		"party_type":      models.TextValue("Business"),
	})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if report.FilledCount != 4 || report.FailedCount != 0 || report.SkippedCount != 0 {
		t.Errorf("report = %+v, want 4 filled", report)
	}
	if string(out) != "%PDF filled locked" {
		t.Errorf("artifact = %q", out)
	}

	filled := engine.filled
	if len(filled.TextFields) != 1 || filled.TextFields[0].Value != "Jane Doe; John Doe" || filled.TextFields[0].ID != "10" {
		t.Errorf("text fields = %+v", filled.TextFields)
	}
	if len(filled.CheckBoxes) != 1 || !filled.CheckBoxes[0].Value {
		t.Errorf("checkboxes = %+v", filled.CheckBoxes)
	}
	if len(filled.ComboBoxes) != 1 || filled.ComboBoxes[0].Value != "Alameda" {
		t.Errorf("combo boxes = %+v, want canonical option", filled.ComboBoxes)
	}
	if len(filled.RadioButtonGroups) != 1 || filled.RadioButtonGroups[0].Value != "Business" {
		t.Errorf("radio groups = %+v", filled.RadioButtonGroups)
	}
	if !filled.TextFields[0].Locked {
		t.Error("filled fields should be locked")
	}
}

func TestFill_PerFieldFailuresAreNonFatal(t *testing.T) {
	engine := &fakeEngine{catalog: courtFormCatalog()}
	_, report, err := NewFiller(engine).Fill([]byte("%PDF"), models.FieldValueMap{
		"plaintiff_names": models.TextValue("Jane Doe"),
		"issue_mold":      models.TextValue("sometimes"),
		"county":          models.TextValue("Kern"),
		"party_type":      models.BoolValue(true),
		"no_such_field":   models.TextValue("x"),
		"blank":           models.TextValue("   "),
	})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if report.FilledCount != 1 {
		t.Errorf("FilledCount = %d, want 1", report.FilledCount)
	}
	if report.FailedCount != 4 {
		t.Errorf("FailedCount = %d, want 4", report.FailedCount)
	}
	if report.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", report.SkippedCount)
	}
	if len(report.Errors) != 4 {
		t.Fatalf("len(Errors) = %d, want 4", len(report.Errors))
	}
	for _, fe := range report.Errors {
		switch fe.Field {
		case "no_such_field":
			if !strings.Contains(fe.Reason, ErrUnknownField.Error()) {
				t.Errorf("%s reason = %q", fe.Field, fe.Reason)
			}
		default:
			if !strings.Contains(fe.Reason, ErrFieldTypeMismatch.Error()) {
				t.Errorf("%s reason = %q", fe.Field, fe.Reason)
			}
		}
	}
}

func TestFill_WithoutCatalogTypesByValue(t *testing.T) {
	engine := &fakeEngine{inspectErr: errors.New("encrypted XFA")}
	filler := NewFiller(engine)

	doc, err := filler.Parse([]byte("%PDF"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.HasCatalog() {
		t.Fatal("HasCatalog() = true, want false")
	}
	report := doc.Apply(models.FieldValueMap{
		"anything":   models.TextValue("value"),
		"some_check": models.BoolValue(false),
	})
	if report.FilledCount != 2 || report.FailedCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if err := doc.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(engine.filled.TextFields) != 1 || len(engine.filled.CheckBoxes) != 1 {
		t.Errorf("form = %+v", engine.filled)
	}
}

func TestFill_ParseAndFinalizeFailuresAreFatal(t *testing.T) {
	if _, _, err := NewFiller(&fakeEngine{pageErr: errors.New("not a PDF")}).Fill([]byte("junk"), nil); err == nil {
		t.Error("Fill() expected parse error")
	}
	engine := &fakeEngine{catalog: courtFormCatalog(), lockErr: errors.New("corrupt xref")}
	if _, _, err := NewFiller(engine).Fill([]byte("%PDF"), models.FieldValueMap{"plaintiff_names": models.TextValue("x")}); err == nil {
		t.Error("Fill() expected finalize error")
	}
}

func TestDocument_KeepEditable(t *testing.T) {
	engine := &fakeEngine{catalog: courtFormCatalog()}
	doc, err := NewFiller(engine).Parse([]byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	doc.KeepEditable()
	doc.Apply(models.FieldValueMap{"plaintiff_names": models.TextValue("Jane Doe")})
	if err := doc.Finalize(); err != nil {
		t.Fatal(err)
	}
	if engine.lockCalls != 0 {
		t.Errorf("Lock called %d times for an editable document", engine.lockCalls)
	}
	if engine.filled.TextFields[0].Locked {
		t.Error("field locked on an editable document")
	}
}

func TestSerializeBeforeFinalize(t *testing.T) {
	doc, err := NewFiller(&fakeEngine{}).Parse([]byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Serialize(); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("Serialize() error = %v, want ErrNotFinalized", err)
	}
}

func TestCatalogFromForms(t *testing.T) {
	forms := []form.Form{{
		TextFields:        []*form.TextField{{ID: "1", Name: "name"}},
		DateFields:        []*form.DateField{{ID: "2", Name: "filed_on"}},
		CheckBoxes:        []*form.CheckBox{{ID: "3"}},
		RadioButtonGroups: []*form.RadioButtonGroup{{ID: "4", Name: "type", Options: []string{"a", "b"}}},
		ListBoxes:         []*form.ListBox{{ID: "5", Name: "county", Options: []string{"x"}}},
		ComboBoxes:        []*form.ComboBox{{ID: "6", Name: "court", Options: []string{"y"}}},
	}}
	catalog := catalogFromForms(forms)
	if len(catalog.Fields) != 6 {
		t.Fatalf("len(Fields) = %d, want 6", len(catalog.Fields))
	}
	if f, ok := catalog.Lookup("3"); !ok || f.Kind != models.FieldCheckbox {
		t.Errorf("unnamed checkbox = %+v, %v; want named by id", f, ok)
	}
	if f, _ := catalog.Lookup("filed_on"); f.Kind != models.FieldText {
		t.Errorf("date field kind = %q, want text", f.Kind)
	}
	if f, _ := catalog.Lookup("county"); f.Kind != models.FieldListBox {
		t.Errorf("list box kind = %q, want list-box", f.Kind)
	}
	if f, _ := catalog.Lookup("court"); f.Kind != models.FieldDropdown {
		t.Errorf("combo box kind = %q, want dropdown", f.Kind)
	}
}

func TestFill_ListBoxIsNotSentAsComboBox(t *testing.T) {
	engine := &fakeEngine{catalog: models.FieldCatalog{Fields: []models.FieldInfo{
		{Name: "venue", ID: "20", Kind: models.FieldListBox, Options: []string{"Alameda", "Fresno"}},
		{Name: "court", ID: "21", Kind: models.FieldDropdown, Options: []string{"Superior"}},
	}}}
	_, report, err := NewFiller(engine).Fill([]byte("%PDF"), models.FieldValueMap{
		"venue": models.TextValue("fresno"),
		"court": models.TextValue("Superior"),
	})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if report.FilledCount != 2 {
		t.Fatalf("report = %+v, want 2 filled", report)
	}

	filled := engine.filled
	if len(filled.ListBoxes) != 1 {
		t.Fatalf("list boxes = %+v, want 1", filled.ListBoxes)
	}
	if lb := filled.ListBoxes[0]; lb.ID != "20" || len(lb.Values) != 1 || lb.Values[0] != "Fresno" {
		t.Errorf("list box = %+v, want values [Fresno]", lb)
	}
	if len(filled.ComboBoxes) != 1 || filled.ComboBoxes[0].ID != "21" {
		t.Errorf("combo boxes = %+v, want only the dropdown", filled.ComboBoxes)
	}

	payload, err := json.Marshal(form.FormGroup{Forms: []form.Form{*filled}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded form.FormGroup
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Forms) != 1 || len(decoded.Forms[0].ListBoxes) != 1 || len(decoded.Forms[0].ComboBoxes) != 1 {
		t.Errorf("encoded form = %s", payload)
	}
}
