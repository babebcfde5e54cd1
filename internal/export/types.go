// Package export renders draft sections as PDF reports and archives
// them to object storage.
package export

import (
	"errors"
	"time"

	"tokenforge/api/internal/draft"
)

// Request contains parameters for an export operation.
type Request struct {
	Namespace string
	SectionID string
	Record    draft.SectionRecord
	OwnerName string
	Title     string
}

// Result contains the export output. ArchiveObject is set when the
// report was also uploaded to object storage.
type Result struct {
	Data          []byte
	Filename      string
	MimeType      string
	ArchiveObject string
	GeneratedAt   time.Time
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
