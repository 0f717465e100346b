package models

import "time"

// Transform names accepted in a MappingEntry.
const (
	TransformJoin     = "join"
	TransformCityZip  = "city_zip"
	TransformTruncate = "truncate"
)

// MappingEntry maps one source path of the case dataset onto one template field.
type MappingEntry struct {
	SourcePath       string `json:"sourcePath" firestore:"sourcePath"`
	DestinationField string `json:"destinationField" firestore:"destinationField"`
	Transform        string `json:"transform,omitempty" firestore:"transform,omitempty"`
	MaxLength        int    `json:"maxLength,omitempty" firestore:"maxLength,omitempty"`
	Required         bool   `json:"required,omitempty" firestore:"required,omitempty"`
}

// DocumentMapping is the mapping configuration for one document type. In
// Firestore the document ID is the document type.
type DocumentMapping struct {
	DocumentType string         `json:"documentType,omitempty" firestore:"-"`
	Template     string         `json:"template" firestore:"template"`
	Version      string         `json:"version,omitempty" firestore:"version,omitempty"`
	Description  string         `json:"description,omitempty" firestore:"description,omitempty"`
	Fields       []MappingEntry `json:"fields" firestore:"fields"`
	UpdatedAt    time.Time      `json:"updatedAt,omitzero" firestore:"updatedAt,omitempty"`
}

// MappingFile is the on-disk form of all mapping configurations.
type MappingFile struct {
	Version   string                     `json:"version"`
	Documents map[string]DocumentMapping `json:"documents"`
}
