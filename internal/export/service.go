package export

import (
	"context"
	"fmt"
)

// Service renders analytics reports in the requested format.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatPDF:
		html, err := RenderReportHTML(req.Report)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, req.Report.Title)
	case FormatCSV:
		return exportCSV(req.Report)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
