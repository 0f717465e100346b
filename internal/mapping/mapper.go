// Package mapping turns a case dataset into the flat field-value map a
// template is filled with, following a declarative per-document-type
// configuration.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// ErrInvalidMapping marks configuration problems found while mapping.
var ErrInvalidMapping = errors.New("invalid field mapping")

// RequiredFieldMissingError is returned when an entry marked required
// resolves to nothing.
type RequiredFieldMissingError struct {
	SourcePath       string
	DestinationField string
}

func (e *RequiredFieldMissingError) Error() string {
	return fmt.Sprintf("required field missing: %s (for %s)", e.SourcePath, e.DestinationField)
}

// Map applies every entry of mapping to the dataset. Entries that resolve to
// nothing are left out of the result unless they are required.
func Map(dataset *models.CaseDataset, mapping models.DocumentMapping) (models.FieldValueMap, error) {
	tree, err := dataset.Tree()
	if err != nil {
		return nil, err
	}
	return MapTree(tree, mapping)
}

// MapTree is Map over an already decoded dataset tree.
func MapTree(tree map[string]any, mapping models.DocumentMapping) (models.FieldValueMap, error) {
	out := make(models.FieldValueMap, len(mapping.Fields))
	for _, entry := range mapping.Fields {
		value, ok, err := mapEntry(tree, entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %s -> %s: %v", ErrInvalidMapping, entry.SourcePath, entry.DestinationField, err)
		}
		if !ok {
			if entry.Required {
				return nil, &RequiredFieldMissingError{SourcePath: entry.SourcePath, DestinationField: entry.DestinationField}
			}
			continue
		}
		out[entry.DestinationField] = value
	}
	return out, nil
}

func mapEntry(tree map[string]any, entry models.MappingEntry) (models.FieldValue, bool, error) {
	values, err := resolve(tree, entry.SourcePath)
	if err != nil {
		return models.FieldValue{}, false, err
	}
	if len(values) == 0 {
		return models.FieldValue{}, false, nil
	}

	var value models.FieldValue
	switch entry.Transform {
	case models.TransformJoin:
		s, err := joinValues(values)
		if err != nil {
			return models.FieldValue{}, false, err
		}
		value = models.TextValue(s)
	case models.TransformCityZip:
		s, err := cityZip(values)
		if err != nil {
			return models.FieldValue{}, false, err
		}
		value = models.TextValue(s)
	case "", models.TransformTruncate:
		value, err = collapse(values)
		if err != nil {
			return models.FieldValue{}, false, err
		}
	default:
		return models.FieldValue{}, false, fmt.Errorf("unknown transform %q", entry.Transform)
	}

	if !value.IsBool() {
		text := strings.TrimSpace(value.Text())
		if text == "" {
			return models.FieldValue{}, false, nil
		}
		value = models.TextValue(Truncate(text, entry.MaxLength))
	}
	return value, true, nil
}

// collapse reduces the values of an entry without a combining transform:
// all-boolean results are OR-ed (any party selected the option), otherwise
// the first non-empty value wins.
func collapse(values []any) (models.FieldValue, error) {
	allBool := true
	selected := false
	for _, v := range values {
		b, ok := v.(bool)
		if !ok {
			allBool = false
			break
		}
		selected = selected || b
	}
	if allBool {
		return models.BoolValue(selected), nil
	}

	for _, v := range values {
		if _, isBool := v.(bool); isBool {
			continue
		}
		s, err := scalarText(v)
		if err != nil {
			return models.FieldValue{}, err
		}
		if strings.TrimSpace(s) != "" {
			return models.TextValue(s), nil
		}
	}
	return models.TextValue(""), nil
}
