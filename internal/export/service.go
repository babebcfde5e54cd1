package export

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Service renders draft sections to PDF. archive may be nil when no
// object storage is configured; exports then only stream to the caller.
type Service struct {
	archive *Archive
}

func NewService(archive *Archive) *Service {
	return &Service{archive: archive}
}

// Export renders the section report and, when an archive is configured,
// uploads a copy. Archive failures are logged, not returned; the caller
// still gets the PDF.
func (s *Service) Export(ctx context.Context, ownerID string, req Request) (*Result, error) {
	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s %s report", req.Namespace, req.SectionID)
	}

	now := time.Now()
	html, err := RenderReportHTML(TemplateData{
		Title:       title,
		Namespace:   req.Namespace,
		SectionID:   req.SectionID,
		OwnerName:   req.OwnerName,
		GeneratedAt: now,
		Inputs:      inputRows(req.Record.Inputs),
		OutputHTML:  outputHTML(req.Record.AIOutput),
	})
	if err != nil {
		return nil, fmt.Errorf("render report template: %w", err)
	}

	pdfData, err := renderPDF(html)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:        pdfData,
		Filename:    sanitizeFilename(title) + ".pdf",
		MimeType:    "application/pdf",
		GeneratedAt: now,
	}

	if s.archive != nil {
		objectName, err := s.archive.Put(ctx, ownerID, result.Filename, pdfData, result.MimeType)
		if err != nil {
			log.Printf("export: archive upload failed: %v", err)
		} else {
			result.ArchiveObject = objectName
		}
	}
	return result, nil
}
