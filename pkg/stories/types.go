package stories

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoryNotFound indicates the story does not exist or does not
	// belong to the requested project.
	ErrStoryNotFound = errors.New("story not found")

	// ErrTaskNotFound indicates the task does not exist under the story
	ErrTaskNotFound = errors.New("task not found")
)

// Status is the workflow state of a story
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// ParseStatus validates a wire-format status string
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusInProgress, StatusDone, StatusArchived:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q (valid: open, in_progress, done, archived)", s)
}

// Priority orders stories within a project
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a wire-format priority string
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q (valid: low, medium, high)", s)
}

// Story is one backlog item in a project
type Story struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task is a sub-task of a story
type Task struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"story_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocEntry is one entry in a story's documentation log. The log is
// append-only; entries are never edited or removed.
type DocEntry struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"story_id"`
	Body      string    `json:"body"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows a project story listing
type ListFilter struct {
	Status    Status
	Priority  Priority
	CreatedBy string
}
