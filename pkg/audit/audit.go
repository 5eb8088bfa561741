package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one recorded action
type Entry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Project   string    `json:"project,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Logger records audit entries
type Logger interface {
	// Record appends one entry. Failures must not abort the operation
	// being audited; callers log and continue.
	Record(ctx context.Context, entry Entry) error
}

// SQLLogger persists audit entries to the database
type SQLLogger struct {
	db *sql.DB
}

// NewSQLLogger creates a database-backed audit logger
func NewSQLLogger(db *sql.DB) *SQLLogger {
	return &SQLLogger{db: db}
}

// Record implements Logger
func (l *SQLLogger) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_log (actor, action, project, resource, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := l.db.ExecContext(ctx, query,
		entry.Actor,
		entry.Action,
		entry.Project,
		entry.Resource,
		entry.Detail,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ListByProject returns a project's audit trail, newest first
func (l *SQLLogger) ListByProject(ctx context.Context, project string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, actor, action, project, resource, detail, created_at
		FROM audit_log
		WHERE project = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Project, &e.Resource, &e.Detail, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// NoOpLogger discards all entries. Used in tests and when auditing is
// disabled.
type NoOpLogger struct{}

// Record implements Logger
func (NoOpLogger) Record(ctx context.Context, entry Entry) error {
	return nil
}
