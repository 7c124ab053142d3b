// Package export renders archive analytics reports as PDF and CSV.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Request contains parameters for an export operation
type Request struct {
	Format Format
	Report Report
}

// Report is the assembled analytics data handed to the renderer.
type Report struct {
	Title    string
	From     time.Time
	To       time.Time
	Summary  Summary
	Velocity []VelocityBucket
	Stories  []ReportStory
}

// Summary mirrors the analytics summary totals.
type Summary struct {
	TotalStories int
	TotalPoints  int
	TotalTasks   int
	DoneTasks    int
	OwnerCount   int
}

// VelocityBucket is one day of completed points.
type VelocityBucket struct {
	Day    string
	Points int
}

// ReportStory is one archived story row in the report.
type ReportStory struct {
	Title       string
	OwnerName   string
	Estimate    int
	Status      string
	CompletedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
