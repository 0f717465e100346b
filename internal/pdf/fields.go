package pdf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

var (
	// ErrUnknownField means the template has no field with that name.
	ErrUnknownField = errors.New("unknown field")
	// ErrFieldTypeMismatch means the value cannot be set on a field of that kind.
	ErrFieldTypeMismatch = errors.New("field type mismatch")
)

// field sets one value on one template field. The variant is picked from
// the field's kind when the template is parsed.
type field interface {
	kind() models.FieldKind
	setValue(dst *form.Form, value models.FieldValue, locked bool) error
}

func newField(info models.FieldInfo) field {
	switch info.Kind {
	case models.FieldCheckbox:
		return checkboxField{info}
	case models.FieldDropdown:
		return dropdownField{info}
	case models.FieldRadioGroup:
		return radioGroupField{info}
	case models.FieldListBox:
		return listBoxField{info}
	default:
		return textField{info}
	}
}

// fieldForValue picks a variant from the value alone, for templates whose
// catalog cannot be read.
func fieldForValue(name string, value models.FieldValue) field {
	if value.IsBool() {
		return checkboxField{models.FieldInfo{Name: name, Kind: models.FieldCheckbox}}
	}
	return textField{models.FieldInfo{Name: name, Kind: models.FieldText}}
}

type textField struct{ info models.FieldInfo }

func (f textField) kind() models.FieldKind { return models.FieldText }

func (f textField) setValue(dst *form.Form, value models.FieldValue, locked bool) error {
	text := value.Text()
	if value.IsBool() {
		text = "No"
		if value.Bool() {
			text = "Yes"
		}
	}
	dst.TextFields = append(dst.TextFields, &form.TextField{
		ID:        f.info.ID,
		Name:      f.info.Name,
		Value:     text,
		Multiline: strings.Contains(text, "\n"),
		Locked:    locked,
	})
	return nil
}

type checkboxField struct{ info models.FieldInfo }

func (f checkboxField) kind() models.FieldKind { return models.FieldCheckbox }

func (f checkboxField) setValue(dst *form.Form, value models.FieldValue, locked bool) error {
	checked := value.Bool()
	if !value.IsBool() {
		var ok bool
		checked, ok = parseChecked(value.Text())
		if !ok {
			return fmt.Errorf("%w: %q is not a checkbox state", ErrFieldTypeMismatch, value.Text())
		}
	}
	dst.CheckBoxes = append(dst.CheckBoxes, &form.CheckBox{
		ID:     f.info.ID,
		Name:   f.info.Name,
		Value:  checked,
		Locked: locked,
	})
	return nil
}

func parseChecked(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "x", "on", "checked", "1":
		return true, true
	case "false", "no", "n", "off", "unchecked", "0":
		return false, true
	}
	return false, false
}

type dropdownField struct{ info models.FieldInfo }

func (f dropdownField) kind() models.FieldKind { return models.FieldDropdown }

func (f dropdownField) setValue(dst *form.Form, value models.FieldValue, locked bool) error {
	choice, err := pickOption(f.info, value)
	if err != nil {
		return err
	}
	dst.ComboBoxes = append(dst.ComboBoxes, &form.ComboBox{
		ID:     f.info.ID,
		Name:   f.info.Name,
		Value:  choice,
		Locked: locked,
	})
	return nil
}

type radioGroupField struct{ info models.FieldInfo }

func (f radioGroupField) kind() models.FieldKind { return models.FieldRadioGroup }

func (f radioGroupField) setValue(dst *form.Form, value models.FieldValue, locked bool) error {
	choice, err := pickOption(f.info, value)
	if err != nil {
		return err
	}
	dst.RadioButtonGroups = append(dst.RadioButtonGroups, &form.RadioButtonGroup{
		ID:     f.info.ID,
		Name:   f.info.Name,
		Value:  choice,
		Locked: locked,
	})
	return nil
}

type listBoxField struct{ info models.FieldInfo }

func (f listBoxField) kind() models.FieldKind { return models.FieldListBox }

func (f listBoxField) setValue(dst *form.Form, value models.FieldValue, locked bool) error {
	choice, err := pickOption(f.info, value)
	if err != nil {
		return err
	}
	dst.ListBoxes = append(dst.ListBoxes, &form.ListBox{
		ID:     f.info.ID,
		Name:   f.info.Name,
		Values: []string{choice},
		Locked: locked,
	})
	return nil
}

// pickOption matches value against the field's options, ignoring case.
// Fields without known options accept any text.
func pickOption(info models.FieldInfo, value models.FieldValue) (string, error) {
	if value.IsBool() {
		return "", fmt.Errorf("%w: boolean value for %s field", ErrFieldTypeMismatch, info.Kind)
	}
	text := strings.TrimSpace(value.Text())
	if len(info.Options) == 0 {
		return text, nil
	}
	for _, opt := range info.Options {
		if strings.EqualFold(opt, text) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of %v", ErrFieldTypeMismatch, text, info.Options)
}
