package models

import (
	"encoding/json"
	"strings"
)

// FieldKind is the declared kind of a template form field.
type FieldKind string

const (
	FieldText       FieldKind = "text"
	FieldCheckbox   FieldKind = "checkbox"
	FieldDropdown   FieldKind = "dropdown"
	FieldRadioGroup FieldKind = "radio-group"
	FieldListBox    FieldKind = "list-box"
)

// FieldInfo describes one form field found in a template.
type FieldInfo struct {
	Name    string    `json:"name"`
	ID      string    `json:"id,omitempty"`
	Kind    FieldKind `json:"kind"`
	Options []string  `json:"options,omitempty"`
	Locked  bool      `json:"locked,omitempty"`
}

// FieldCatalog is the introspected field list of a template.
type FieldCatalog struct {
	Fields []FieldInfo `json:"fields"`
}

// Lookup finds a field by name.
func (c FieldCatalog) Lookup(name string) (FieldInfo, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// FieldValue is either a string or a boolean destined for one form field.
type FieldValue struct {
	text   string
	flag   bool
	isBool bool
}

func TextValue(s string) FieldValue { return FieldValue{text: s} }

func BoolValue(b bool) FieldValue { return FieldValue{flag: b, isBool: true} }

func (v FieldValue) IsBool() bool { return v.isBool }

// Text returns the string value; booleans render as "true" or "false".
func (v FieldValue) Text() string {
	if v.isBool {
		if v.flag {
			return "true"
		}
		return "false"
	}
	return v.text
}

func (v FieldValue) Bool() bool { return v.flag }

// IsEmpty reports a blank string. Booleans are never empty.
func (v FieldValue) IsEmpty() bool {
	return !v.isBool && strings.TrimSpace(v.text) == ""
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.flag)
	}
	return json.Marshal(v.text)
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = TextValue(s)
	return nil
}

// FieldValueMap maps destination field names to the values to set.
type FieldValueMap map[string]FieldValue
