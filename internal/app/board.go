package app

import (
	"context"
	"math"
	"net/http"
	"time"

	"sprintboard/api/internal/policy"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

var allowedStatuses = map[string]struct{}{
	"backlog":     {},
	"ready":       {},
	"in-progress": {},
	"done":        {},
}

type CreateStoryInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Estimate    *float64 `json:"estimate"`
	Status      string   `json:"status"`
}

func (session Session) actor() policy.Actor {
	return policy.Actor{ID: session.UserID, Role: policy.Normalize(session.Role)}
}

// maxEstimate caps story points; larger floats would overflow the
// int conversion below.
const maxEstimate = math.MaxInt32

// normalizeEstimate coerces any estimate input to a valid point value.
// Non-finite and sub-1 values become 1.
func normalizeEstimate(e *float64) int {
	if e == nil {
		return 1
	}
	v := *e
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 1
	}
	if v > maxEstimate {
		return maxEstimate
	}
	return int(v)
}

func validStatus(status string) bool {
	_, ok := allowedStatuses[status]
	return ok
}

func storyView(story store.Story) map[string]any {
	tasks := make([]map[string]any, 0, len(story.Tasks))
	for _, task := range story.Tasks {
		tasks = append(tasks, taskView(task))
	}
	return map[string]any{
		"id":          story.ID,
		"title":       story.Title,
		"description": story.Description,
		"estimate":    story.Estimate,
		"status":      story.Status,
		"ownerId":     story.OwnerID,
		"createdAt":   story.CreatedAt,
		"tasks":       tasks,
	}
}

func taskView(task store.Task) map[string]any {
	return map[string]any{
		"id":        task.ID,
		"storyId":   task.StoryID,
		"title":     task.Title,
		"done":      task.Done,
		"createdAt": task.CreatedAt,
	}
}

func (s *Service) CreateStory(ctx context.Context, session Session, input CreateStoryInput) (map[string]any, error) {
	if input.Title == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required")
	}
	status := input.Status
	if status == "" {
		status = "backlog"
	}
	if !validStatus(status) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid status")
	}

	story := store.Story{
		ID:          util.NewID("story"),
		Title:       input.Title,
		Description: input.Description,
		Estimate:    normalizeEstimate(input.Estimate),
		Status:      status,
		OwnerID:     session.UserID,
		CreatedAt:   time.Now().UTC(),
		Tasks:       []store.Task{},
	}
	if err := s.store.InsertStory(ctx, story); err != nil {
		return nil, err
	}
	s.indexStory(story)

	return storyView(story), nil
}

func (s *Service) ListStories(ctx context.Context) (map[string]any, error) {
	stories, err := s.store.ListStories(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(stories))
	for _, story := range stories {
		items = append(items, storyView(story))
	}
	return map[string]any{"stories": items}, nil
}

// SetStatus moves a story to any of the four statuses. Backwards moves are
// allowed; the board does not enforce an ordering.
func (s *Service) SetStatus(ctx context.Context, session Session, storyID, status string) (map[string]any, error) {
	if !validStatus(status) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid status")
	}

	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !policy.CanEditStory(session.actor(), policy.StoryRef{ID: story.ID, OwnerID: story.OwnerID}) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to edit this story")
	}

	if _, err := s.store.UpdateStoryStatus(ctx, storyID, status); err != nil {
		return nil, err
	}
	story.Status = status
	s.indexStory(story)

	return map[string]any{"id": storyID, "status": status}, nil
}

func (s *Service) SetEstimate(ctx context.Context, session Session, storyID string, estimate int) (map[string]any, error) {
	if estimate < 1 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "estimate must be an integer >= 1")
	}

	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !policy.CanEditStory(session.actor(), policy.StoryRef{ID: story.ID, OwnerID: story.OwnerID}) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to edit this story")
	}

	if _, err := s.store.UpdateStoryEstimate(ctx, storyID, estimate); err != nil {
		return nil, err
	}
	return map[string]any{"id": storyID, "estimate": estimate}, nil
}

func (s *Service) AddTask(ctx context.Context, storyID, title string) (map[string]any, error) {
	if title == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required")
	}
	if _, err := s.store.GetStory(ctx, storyID); err != nil {
		return nil, err
	}

	task := store.Task{
		ID:        util.NewID("task"),
		StoryID:   storyID,
		Title:     title,
		Done:      false,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	return taskView(task), nil
}

func (s *Service) ToggleTask(ctx context.Context, storyID, taskID string, done bool) (map[string]any, error) {
	matched, err := s.store.SetTaskDone(ctx, storyID, taskID, done)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "task not found")
	}
	return map[string]any{"id": taskID, "done": done}, nil
}

func (s *Service) RemoveTask(ctx context.Context, storyID, taskID string) error {
	matched, err := s.store.DeleteTask(ctx, storyID, taskID)
	if err != nil {
		return err
	}
	if !matched {
		return domainError(http.StatusNotFound, "NOT_FOUND", "task not found")
	}
	return nil
}

// RemoveStory deletes a live story; child tasks cascade.
func (s *Service) RemoveStory(ctx context.Context, session Session, storyID string) error {
	if !policy.CanDeleteStory(session.actor()) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to delete stories")
	}

	matched, err := s.store.DeleteStory(ctx, storyID)
	if err != nil {
		return err
	}
	if !matched {
		return domainError(http.StatusNotFound, "NOT_FOUND", "story not found")
	}
	s.unindexStory(storyID)
	return nil
}

func (s *Service) indexStory(story store.Story) {
	if s.search == nil {
		return
	}
	s.search.IndexStory(search.RecordFromStory(story))
}

func (s *Service) unindexStory(storyID string) {
	if s.search == nil {
		return
	}
	s.search.DeleteStory(storyID)
}
