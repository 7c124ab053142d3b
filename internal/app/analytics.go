package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"sprintboard/api/internal/export"
	"sprintboard/api/internal/policy"
	"sprintboard/api/internal/store"
)

const defaultWindowDays = 29

// resolveWindow turns optional from/to parameters into an inclusive UTC
// window widened to calendar-day boundaries. A missing "to" means now, a
// missing "from" means 29 days before "to", and a reversed pair is swapped.
// All bucketing uses UTC so results do not depend on the server's clock zone.
func resolveWindow(fromParam, toParam string, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if toParam != "" {
		parsed, err := parseDateParam(toParam)
		if err != nil {
			return time.Time{}, time.Time{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid to date")
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -defaultWindowDays)
	if fromParam != "" {
		parsed, err := parseDateParam(fromParam)
		if err != nil {
			return time.Time{}, time.Time{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid from date")
		}
		from = parsed
	}

	if from.After(to) {
		from, to = to, from
	}

	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 999_000_000, time.UTC)
	return from, to, nil
}

func parseDateParam(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// decodeSnapshot deserializes an archived tasks snapshot. Malformed or
// non-array data degrades to an empty list instead of failing the whole
// analytics request.
func decodeSnapshot(raw string) []store.TaskSnapshot {
	var tasks []store.TaskSnapshot
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil || tasks == nil {
		return []store.TaskSnapshot{}
	}
	return tasks
}

type velocityBucket struct {
	Date    string `json:"date"`
	Stories int    `json:"stories"`
	Points  int    `json:"points"`
}

type archiveSummary struct {
	TotalStories int `json:"totalStories"`
	TotalPoints  int `json:"totalPoints"`
	TotalTasks   int `json:"totalTasks"`
	DoneTasks    int `json:"doneTasks"`
	OwnerCount   int `json:"ownerCount"`
}

type archiveAggregate struct {
	From     time.Time
	To       time.Time
	Summary  archiveSummary
	Velocity []velocityBucket
	Rows     []store.ArchivedStory
	Tasks    [][]store.TaskSnapshot // decoded snapshot per row
}

// aggregateArchive fetches archive rows for the window and folds the summary
// totals plus the per-day velocity series, sorted ascending by date.
func (s *Service) aggregateArchive(ctx context.Context, fromParam, toParam string) (archiveAggregate, error) {
	from, to, err := resolveWindow(fromParam, toParam, time.Now())
	if err != nil {
		return archiveAggregate{}, err
	}

	rows, err := s.store.ListArchivedBetween(ctx, from, to)
	if err != nil {
		return archiveAggregate{}, err
	}

	agg := archiveAggregate{From: from, To: to, Rows: rows}
	owners := make(map[string]struct{})
	buckets := make(map[string]*velocityBucket)

	for _, row := range rows {
		tasks := decodeSnapshot(row.TasksSnapshot)
		agg.Tasks = append(agg.Tasks, tasks)

		agg.Summary.TotalStories++
		agg.Summary.TotalPoints += row.Estimate
		agg.Summary.TotalTasks += len(tasks)
		for _, task := range tasks {
			if task.Done {
				agg.Summary.DoneTasks++
			}
		}
		if row.OwnerName != nil {
			owners[*row.OwnerName] = struct{}{}
		}

		day := row.CompletedAt.UTC().Format("2006-01-02")
		bucket, ok := buckets[day]
		if !ok {
			bucket = &velocityBucket{Date: day}
			buckets[day] = bucket
		}
		bucket.Stories++
		bucket.Points += row.Estimate
	}
	agg.Summary.OwnerCount = len(owners)

	agg.Velocity = make([]velocityBucket, 0, len(buckets))
	for _, bucket := range buckets {
		agg.Velocity = append(agg.Velocity, *bucket)
	}
	// ISO dates sort lexically in chronological order.
	sort.Slice(agg.Velocity, func(i, j int) bool { return agg.Velocity[i].Date < agg.Velocity[j].Date })

	return agg, nil
}

// Summarize returns archive analytics for the window: range, summary totals,
// velocity series and the detail rows.
func (s *Service) Summarize(ctx context.Context, session Session, fromParam, toParam string) (map[string]any, error) {
	if !policy.CanViewAnalytics(session.actor()) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to view analytics")
	}

	agg, err := s.aggregateArchive(ctx, fromParam, toParam)
	if err != nil {
		return nil, err
	}

	stories := make([]map[string]any, 0, len(agg.Rows))
	for i, row := range agg.Rows {
		stories = append(stories, archivedStoryView(row, agg.Tasks[i]))
	}

	return map[string]any{
		"range":    map[string]any{"from": agg.From, "to": agg.To},
		"summary":  agg.Summary,
		"velocity": agg.Velocity,
		"stories":  stories,
	}, nil
}

func archivedStoryView(row store.ArchivedStory, tasks []store.TaskSnapshot) map[string]any {
	return map[string]any{
		"id":              row.ID,
		"originalStoryId": row.OriginalStoryID,
		"title":           row.Title,
		"description":     row.Description,
		"estimate":        row.Estimate,
		"status":          row.Status,
		"ownerId":         row.OwnerID,
		"ownerName":       row.OwnerName,
		"tasksSnapshot":   tasks,
		"completedAt":     row.CompletedAt,
	}
}

// ExportAnalytics renders the archive analytics for the window as a PDF or
// CSV download.
func (s *Service) ExportAnalytics(ctx context.Context, session Session, fromParam, toParam, format string) (*export.Result, error) {
	if !policy.CanViewAnalytics(session.actor()) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to view analytics")
	}
	if format != string(export.FormatPDF) && format != string(export.FormatCSV) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "format must be pdf or csv")
	}

	agg, err := s.aggregateArchive(ctx, fromParam, toParam)
	if err != nil {
		return nil, err
	}

	report := export.Report{
		Title: "Sprint archive report",
		From:  agg.From,
		To:    agg.To,
		Summary: export.Summary{
			TotalStories: agg.Summary.TotalStories,
			TotalPoints:  agg.Summary.TotalPoints,
			TotalTasks:   agg.Summary.TotalTasks,
			DoneTasks:    agg.Summary.DoneTasks,
			OwnerCount:   agg.Summary.OwnerCount,
		},
	}
	for _, bucket := range agg.Velocity {
		report.Velocity = append(report.Velocity, export.VelocityBucket{Day: bucket.Date, Points: bucket.Points})
	}
	for _, row := range agg.Rows {
		ownerName := ""
		if row.OwnerName != nil {
			ownerName = *row.OwnerName
		}
		report.Stories = append(report.Stories, export.ReportStory{
			Title:       row.Title,
			OwnerName:   ownerName,
			Estimate:    row.Estimate,
			Status:      row.Status,
			CompletedAt: row.CompletedAt,
		})
	}

	return s.export.Export(ctx, export.Request{Format: export.Format(format), Report: report})
}
