package stories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles story persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new story store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateStory inserts a new story
func (s *Store) CreateStory(ctx context.Context, story *Story) error {
	query := `
		INSERT INTO stories (project, title, description, status, priority, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		story.Project,
		story.Title,
		story.Description,
		story.Status,
		story.Priority,
		story.CreatedBy,
		now,
		now,
	).Scan(&story.ID)

	if err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}

	story.CreatedAt = now
	story.UpdatedAt = now
	return nil
}

// GetStory retrieves a story by ID within a project. A story belonging to a
// different project is reported as not found.
func (s *Store) GetStory(ctx context.Context, id int64, project string) (*Story, error) {
	query := `
		SELECT id, project, title, description, status, priority, created_by, created_at, updated_at
		FROM stories
		WHERE id = $1 AND project = $2
	`

	var story Story
	err := s.db.QueryRowContext(ctx, query, id, project).Scan(
		&story.ID,
		&story.Project,
		&story.Title,
		&story.Description,
		&story.Status,
		&story.Priority,
		&story.CreatedBy,
		&story.CreatedAt,
		&story.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	return &story, nil
}

// ListStories lists a project's stories, optionally filtered
func (s *Store) ListStories(ctx context.Context, project string, filter ListFilter) ([]Story, error) {
	query := `
		SELECT id, project, title, description, status, priority, created_by, created_at, updated_at
		FROM stories
		WHERE project = $1
	`
	args := []interface{}{project}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		query += fmt.Sprintf(" AND created_by = $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		var story Story
		err := rows.Scan(
			&story.ID,
			&story.Project,
			&story.Title,
			&story.Description,
			&story.Status,
			&story.Priority,
			&story.CreatedBy,
			&story.CreatedAt,
			&story.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, story)
	}

	return stories, rows.Err()
}

// UpdateStory updates a story's mutable fields. The story must already be
// scoped to the right project by the caller (GetStory).
func (s *Store) UpdateStory(ctx context.Context, story *Story) error {
	query := `
		UPDATE stories
		SET title = $1, description = $2, status = $3, priority = $4, updated_at = $5
		WHERE id = $6 AND project = $7
	`

	story.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		story.Title,
		story.Description,
		story.Status,
		story.Priority,
		story.UpdatedAt,
		story.ID,
		story.Project,
	)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStoryNotFound
	}

	return nil
}

// DeleteStory removes a story and its tasks and documentation entries
func (s *Store) DeleteStory(ctx context.Context, id int64, project string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id = $1 AND project = $2`, id, project)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStoryNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE story_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_entries WHERE story_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete documentation entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit story deletion: %w", err)
	}

	return nil
}

// CountStories returns the total number of stories across all projects
func (s *Store) CountStories(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}
	return count, nil
}

// CreateTask inserts a new task under a story
func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO tasks (story_id, title, done, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		task.StoryID,
		task.Title,
		task.Done,
		task.CreatedBy,
		now,
		now,
	).Scan(&task.ID)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// ListTasks lists a story's tasks
func (s *Store) ListTasks(ctx context.Context, storyID int64) ([]Task, error) {
	query := `
		SELECT id, story_id, title, done, created_by, created_at, updated_at
		FROM tasks
		WHERE story_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		err := rows.Scan(
			&task.ID,
			&task.StoryID,
			&task.Title,
			&task.Done,
			&task.CreatedBy,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// GetTask retrieves a task by ID under a story
func (s *Store) GetTask(ctx context.Context, id, storyID int64) (*Task, error) {
	query := `
		SELECT id, story_id, title, done, created_by, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND story_id = $2
	`

	var task Task
	err := s.db.QueryRowContext(ctx, query, id, storyID).Scan(
		&task.ID,
		&task.StoryID,
		&task.Title,
		&task.Done,
		&task.CreatedBy,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// UpdateTask updates a task's title and done flag
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	query := `
		UPDATE tasks
		SET title = $1, done = $2, updated_at = $3
		WHERE id = $4 AND story_id = $5
	`

	task.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Done,
		task.UpdatedAt,
		task.ID,
		task.StoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// DeleteTask removes a task
func (s *Store) DeleteTask(ctx context.Context, id, storyID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND story_id = $2`, id, storyID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// AddDocEntry appends an entry to a story's documentation log
func (s *Store) AddDocEntry(ctx context.Context, entry *DocEntry) error {
	query := `
		INSERT INTO doc_entries (story_id, body, created_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		entry.StoryID,
		entry.Body,
		entry.CreatedBy,
		now,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to add documentation entry: %w", err)
	}

	entry.CreatedAt = now
	return nil
}

// ListDocEntries lists a story's documentation log in insertion order
func (s *Store) ListDocEntries(ctx context.Context, storyID int64) ([]DocEntry, error) {
	query := `
		SELECT id, story_id, body, created_by, created_at
		FROM doc_entries
		WHERE story_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documentation entries: %w", err)
	}
	defer rows.Close()

	var entries []DocEntry
	for rows.Next() {
		var entry DocEntry
		err := rows.Scan(
			&entry.ID,
			&entry.StoryID,
			&entry.Body,
			&entry.CreatedBy,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan documentation entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
