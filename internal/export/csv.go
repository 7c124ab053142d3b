package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// exportCSV renders the report's story rows as CSV.
func exportCSV(report Report) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"title", "owner", "estimate", "status", "completed_at"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, story := range report.Stories {
		row := []string{
			story.Title,
			story.OwnerName,
			strconv.Itoa(story.Estimate),
			story.Status,
			story.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(report.Title) + ".csv",
		MimeType: "text/csv",
	}, nil
}
