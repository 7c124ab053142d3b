package export

import (
	"context"
	"strings"
	"testing"
	"time"
)

func sampleReport() Report {
	return Report{
		Title: "Sprint archive report",
		From:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2025, 3, 30, 23, 59, 59, 0, time.UTC),
		Summary: Summary{
			TotalStories: 2,
			TotalPoints:  8,
			TotalTasks:   5,
			DoneTasks:    4,
			OwnerCount:   2,
		},
		Velocity: []VelocityBucket{
			{Day: "2025-03-10", Points: 3},
			{Day: "2025-03-12", Points: 5},
		},
		Stories: []ReportStory{
			{Title: "Checkout flow", OwnerName: "ada", Estimate: 3, Status: "done", CompletedAt: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
			{Title: "Search facets", OwnerName: "bob", Estimate: 5, Status: "done", CompletedAt: time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)},
		},
	}
}

func TestRenderReportHTML(t *testing.T) {
	html, err := RenderReportHTML(sampleReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"Sprint archive report",
		"Checkout flow",
		"Search facets",
		"2025-03-10",
		"<table>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesMarkup(t *testing.T) {
	report := sampleReport()
	report.Stories[0].Title = "<script>alert(1)</script>"

	html, err := RenderReportHTML(report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("story title must be HTML-escaped")
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService()

	result, err := svc.Export(context.Background(), Request{Format: FormatCSV, Report: sampleReport()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.MimeType != "text/csv" {
		t.Errorf("expected text/csv, got %s", result.MimeType)
	}
	if result.Filename != "Sprint-archive-report.csv" {
		t.Errorf("unexpected filename %s", result.Filename)
	}

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "title,owner,estimate,status,completed_at" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Checkout flow") || !strings.Contains(lines[1], "2025-03-10T14:00:00Z") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService()

	if _, err := svc.Export(context.Background(), Request{Format: "docx", Report: sampleReport()}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sprint archive report", "Sprint-archive-report"},
		{"weird/chars:here?", "weirdcharshere"},
		{"double  spaced -- title", "double-spaced-title"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"", "report"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("unexpected encoding: %s", got)
	}
}
