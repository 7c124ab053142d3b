package store

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Story struct {
	ID          string
	Title       string
	Description string
	Estimate    int
	Status      string
	OwnerID     string
	CreatedAt   time.Time
	Tasks       []Task
}

type Task struct {
	ID        string
	StoryID   string
	Title     string
	Done      bool
	CreatedAt time.Time
}

// ArchivedStory is the immutable record an archive transition produces.
// TasksSnapshot is a serialized value, not a reference: it keeps the task
// list as it was at archive time regardless of what happens to the live rows.
type ArchivedStory struct {
	ID              string
	OriginalStoryID string
	Title           string
	Description     string
	Estimate        int
	Status          string
	OwnerID         *string
	OwnerName       *string
	TasksSnapshot   string
	CompletedAt     time.Time
}

// TaskSnapshot is the wire shape of one entry inside TasksSnapshot.
type TaskSnapshot struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}
