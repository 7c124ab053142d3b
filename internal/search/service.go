// Package search provides story search backed by Meilisearch with a
// database fallback.
package search

import (
	"context"
	"log"

	"sprintboard/api/internal/store"
)

// StoryFinder is the database side of search: the query fallback and
// the source of truth for bulk reindexing.
type StoryFinder interface {
	SearchStories(ctx context.Context, query string, limit int) ([]store.Story, error)
	ListStories(ctx context.Context) ([]store.Story, error)
}

// RecordFromStory maps a stored story onto its search document.
func RecordFromStory(story store.Story) StoryRecord {
	return StoryRecord{
		ID:          story.ID,
		Title:       story.Title,
		Description: story.Description,
		Status:      story.Status,
		OwnerID:     story.OwnerID,
		Estimate:    story.Estimate,
	}
}

// Service is the facade that tries Meilisearch first and falls back to the
// database.
type Service struct {
	meili    *Meili
	fallback StoryFinder
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback StoryFinder) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back to the database.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to database: %v", err)
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	stories, err := s.fallback.SearchStories(ctx, q.Text, limit)
	if err != nil {
		log.Printf("search: database fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results := make([]Result, 0, len(stories))
	for _, story := range stories {
		if q.FilterOwner != "" && story.OwnerID != q.FilterOwner {
			continue
		}
		results = append(results, Result{
			ID:      story.ID,
			Title:   story.Title,
			Snippet: story.Description,
			Status:  story.Status,
			OwnerID: story.OwnerID,
		})
	}
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexStory indexes a story (fire-and-forget to Meilisearch).
func (s *Service) IndexStory(rec StoryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexStory(rec); err != nil {
			log.Printf("search: index story %s: %v", rec.ID, err)
		}
	}()
}

// DeleteStory removes a story from the search index (fire-and-forget).
func (s *Service) DeleteStory(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteStory(id); err != nil {
			log.Printf("search: delete story %s: %v", id, err)
		}
	}()
}

// ReindexAllFromDB bulk-pushes every story from the database into
// Meilisearch so the index catches up after downtime.
func (s *Service) ReindexAllFromDB(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	stories, err := s.fallback.ListStories(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]StoryRecord, 0, len(stories))
	for _, story := range stories {
		records = append(records, RecordFromStory(story))
	}
	if err := s.meili.IndexStories(records); err != nil {
		log.Printf("search: reindex stories: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
