package models

import (
	"strings"
	"time"
)

// OpenAPISpec represents the openapi_specs table structure
type OpenAPISpec struct {
	ID      int     `json:"id" db:"id"`
	Name    string  `json:"name" db:"name"`
	Title   *string `json:"title,omitempty" db:"title"`
	Version *string `json:"version,omitempty" db:"version"`
	// Source is the file path or URL the document was imported from.
	Source      string `json:"source" db:"source"`
	SpecContent string `json:"spec_content" db:"spec_content"`
	FileFormat  string `json:"file_format" db:"file_format"`
	// BaseURL overrides the document's servers when set.
	BaseURL *string `json:"base_url,omitempty" db:"base_url"`
	// Mode is the dispatch mode to serve this spec in, full or search.
	Mode      *string    `json:"mode,omitempty" db:"mode"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the OpenAPISpec model
func (OpenAPISpec) TableName() string {
	return "openapi_specs"
}

// NewOpenAPISpec creates a new active OpenAPISpec, guessing the file format
// from the content.
func NewOpenAPISpec(name, source, specContent string) *OpenAPISpec {
	return &OpenAPISpec{
		Name:        name,
		Source:      source,
		SpecContent: specContent,
		FileFormat:  DetectFormat(specContent),
		IsActive:    true,
	}
}

// DetectFormat reports "json" for content starting with '{', else "yaml".
func DetectFormat(content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), "{") {
		return "json"
	}
	return "yaml"
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionalString returns nil for "" and a pointer to s otherwise.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
