package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE username=$1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ── Stories & tasks ──

func (s *PostgresStore) InsertStory(ctx context.Context, story Story) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, title, description, estimate, status, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, story.ID, story.Title, story.Description, story.Estimate, story.Status, story.OwnerID, story.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

// ListStories returns all live stories newest-first with their tasks attached
// in creation order.
func (s *PostgresStore) ListStories(ctx context.Context) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, estimate, status, owner_id, created_at
		FROM stories
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]Story, 0)
	index := make(map[string]int)
	for rows.Next() {
		var item Story
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.Estimate, &item.Status, &item.OwnerID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		item.Tasks = make([]Task, 0)
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}

	taskRows, err := s.db.QueryContext(ctx, `
		SELECT id, story_id, title, done, created_at
		FROM tasks
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		var task Task
		if err := taskRows.Scan(&task.ID, &task.StoryID, &task.Title, &task.Done, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if i, ok := index[task.StoryID]; ok {
			items[i].Tasks = append(items[i].Tasks, task)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetStory(ctx context.Context, storyID string) (Story, error) {
	var item Story
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, estimate, status, owner_id, created_at
		FROM stories
		WHERE id=$1
	`, storyID).Scan(&item.ID, &item.Title, &item.Description, &item.Estimate, &item.Status, &item.OwnerID, &item.CreatedAt)
	if err != nil {
		return Story{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, story_id, title, done, created_at
		FROM tasks
		WHERE story_id=$1
		ORDER BY created_at ASC, id ASC
	`, storyID)
	if err != nil {
		return Story{}, fmt.Errorf("list story tasks: %w", err)
	}
	defer rows.Close()

	item.Tasks = make([]Task, 0)
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.StoryID, &task.Title, &task.Done, &task.CreatedAt); err != nil {
			return Story{}, fmt.Errorf("scan story task: %w", err)
		}
		item.Tasks = append(item.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return Story{}, fmt.Errorf("iterate story tasks: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateStoryStatus(ctx context.Context, storyID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE stories SET status=$2 WHERE id=$1`, storyID, status)
	if err != nil {
		return false, fmt.Errorf("update story status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update story status affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateStoryEstimate(ctx context.Context, storyID string, estimate int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE stories SET estimate=$2 WHERE id=$1`, storyID, estimate)
	if err != nil {
		return false, fmt.Errorf("update story estimate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update story estimate affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteStory removes a story; child tasks go with it via the FK cascade.
func (s *PostgresStore) DeleteStory(ctx context.Context, storyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, storyID)
	if err != nil {
		return false, fmt.Errorf("delete story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete story affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, story_id, title, done, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, task.ID, task.StoryID, task.Title, task.Done, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetTaskDone(ctx context.Context, storyID, taskID string, done bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET done=$3 WHERE id=$2 AND story_id=$1
	`, storyID, taskID, done)
	if err != nil {
		return false, fmt.Errorf("set task done: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set task done affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, storyID, taskID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$2 AND story_id=$1`, storyID, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task affected: %w", err)
	}
	return affected > 0, nil
}

// ── Archive ──

// ArchiveStory inserts the archive record and deletes the live story as one
// transaction. The delete runs first and its affected-row count gates the
// insert, so two concurrent archive calls for the same story cannot both
// produce an archive row: the loser sees zero rows deleted and gets
// sql.ErrNoRows.
func (s *PostgresStore) ArchiveStory(ctx context.Context, archived ArchivedStory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, archived.OriginalStoryID)
	if err != nil {
		return fmt.Errorf("archive delete story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive delete affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO archived_stories
			(id, original_story_id, title, description, estimate, status, owner_id, owner_name, tasks_snapshot, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, archived.ID, archived.OriginalStoryID, archived.Title, archived.Description, archived.Estimate,
		archived.Status, archived.OwnerID, archived.OwnerName, archived.TasksSnapshot, archived.CompletedAt); err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArchivedBetween(ctx context.Context, from, to time.Time) ([]ArchivedStory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_story_id, title, description, estimate, status, owner_id, owner_name, tasks_snapshot, completed_at
		FROM archived_stories
		WHERE completed_at >= $1 AND completed_at <= $2
		ORDER BY completed_at DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list archived stories: %w", err)
	}
	defer rows.Close()

	items := make([]ArchivedStory, 0)
	for rows.Next() {
		var item ArchivedStory
		if err := rows.Scan(&item.ID, &item.OriginalStoryID, &item.Title, &item.Description, &item.Estimate,
			&item.Status, &item.OwnerID, &item.OwnerName, &item.TasksSnapshot, &item.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan archived story: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived stories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteArchived(ctx context.Context, archiveID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM archived_stories WHERE id=$1`, archiveID)
	if err != nil {
		return false, fmt.Errorf("delete archived story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete archived affected: %w", err)
	}
	return affected > 0, nil
}

// ── Refresh sessions & token revocation (Postgres fallback when Redis is
// not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.username, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Username, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// IsNotFound reports whether err is the store's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
