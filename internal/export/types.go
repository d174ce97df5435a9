// Package export renders translated works to HTML and PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	WorkID          string
	Format          Format
	IncludeOriginal bool
	ReleasedOnly    bool
}

// WorkData is the work content assembled for export
type WorkData struct {
	ID             string
	Title          string
	Author         string
	Language       string
	SourceLanguage string
	Description    string
	UpdatedAt      time.Time
	Chapters       []ChapterData
}

// ChapterData is one chapter of an exported work
type ChapterData struct {
	Title    string
	Segments []SegmentData
}

// SegmentData is one segment of an exported chapter
type SegmentData struct {
	Original   string
	Translated string
	Progress   int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates work content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates the requested format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
