package pdfinfo

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Counter reports page counts for PDF files. Other formats count as a
// single page image, reported as zero so callers can tell "unknown" apart
// from a real count.
type Counter struct{}

func New() Counter { return Counter{} }

func (Counter) CountPages(data []byte, mimeType string) int {
	if !strings.EqualFold(mimeType, "application/pdf") {
		return 0
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
