package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sprintboard/api/internal/policy"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

// Archive snapshots a live story into the archive and removes it from the
// board. The insert and the delete are one transaction in the store; a
// story that disappears between the load and the transaction surfaces as
// not-found rather than a duplicate archive row.
func (s *Service) Archive(ctx context.Context, session Session, storyID string) (map[string]any, error) {
	if !policy.CanArchiveStory(session.actor()) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to archive stories")
	}

	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	var ownerID, ownerName *string
	if story.OwnerID != "" {
		ownerID = &story.OwnerID
		if owner, err := s.store.GetUserByID(ctx, story.OwnerID); err == nil {
			name := owner.Username
			ownerName = &name
		}
	}

	snapshot := make([]store.TaskSnapshot, 0, len(story.Tasks))
	for _, task := range story.Tasks {
		snapshot = append(snapshot, store.TaskSnapshot{
			ID:        task.ID,
			Title:     task.Title,
			Done:      task.Done,
			CreatedAt: task.CreatedAt,
		})
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal tasks snapshot: %w", err)
	}

	archived := store.ArchivedStory{
		ID:              util.NewID("arch"),
		OriginalStoryID: story.ID,
		Title:           story.Title,
		Description:     story.Description,
		Estimate:        story.Estimate,
		Status:          "done",
		OwnerID:         ownerID,
		OwnerName:       ownerName,
		TasksSnapshot:   string(snapshotJSON),
		CompletedAt:     time.Now().UTC(),
	}

	if err := s.store.ArchiveStory(ctx, archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "story not found")
		}
		return nil, fmt.Errorf("archive transition failed: %w", err)
	}
	s.unindexStory(story.ID)

	return map[string]any{"archivedId": archived.ID}, nil
}

// DeleteArchived removes an archive record. The original story stays gone;
// archiving is one-way.
func (s *Service) DeleteArchived(ctx context.Context, session Session, archiveID string) error {
	if !policy.CanArchiveStory(session.actor()) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "not allowed to manage the archive")
	}

	matched, err := s.store.DeleteArchived(ctx, archiveID)
	if err != nil {
		return err
	}
	if !matched {
		return domainError(http.StatusNotFound, "NOT_FOUND", "archived story not found")
	}
	return nil
}
