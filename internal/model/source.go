// Package model defines the core data types shared across the ingestion pipeline.
package model

// Source identifies one hospital's declared file-fetch target.
type Source struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	URLs        []string `json:"urls" yaml:"urls"`
	ContentHint string   `json:"content_hint,omitempty" yaml:"content_hint,omitempty"` // "csv", "json", "zip", "xlsx"
}

// HasURL reports whether the source declares at least one candidate URL.
func (s Source) HasURL() bool {
	return len(s.URLs) > 0
}
