package store

import (
	"context"
	"fmt"
)

// SearchStories is the database fallback for story search: a case-insensitive
// substring match over title and description, newest first.
func (s *PostgresStore) SearchStories(ctx context.Context, query string, limit int) ([]Story, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, estimate, status, owner_id, created_at
		FROM stories
		WHERE title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search stories: %w", err)
	}
	defer rows.Close()

	items := make([]Story, 0)
	for rows.Next() {
		var item Story
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.Estimate, &item.Status, &item.OwnerID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search story: %w", err)
		}
		item.Tasks = make([]Task, 0)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search stories: %w", err)
	}
	return items, nil
}
