package domain

import (
	"time"

	"github.com/vkurennov/medarchive/internal/core/taxonomy"
)

// FileRef points at a stored source file (scan, photo or PDF).
type FileRef struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	PageCount int    `json:"page_count,omitempty"`
}

// Document is one logical medical record, possibly collated from
// several physical pages.
type Document struct {
	ID              string            `json:"id"`
	Date            time.Time         `json:"date"`
	Category        taxonomy.Category `json:"category"`
	Subtype         taxonomy.Subtype  `json:"subtype"`
	Title           string            `json:"title"`
	Doctor          string            `json:"doctor,omitempty"`
	Specialty       string            `json:"specialty,omitempty"`
	Clinic          string            `json:"clinic,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Conclusion      string            `json:"conclusion,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Content         string            `json:"content,omitempty"`
	File            *FileRef          `json:"file,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
	Measurements    []Measurement     `json:"measurements,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Measurement is one numeric clinical data point owned by a document.
// Name is always a canonical catalog key, never a raw alias.
type Measurement struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
	Date  time.Time `json:"date"`
}
