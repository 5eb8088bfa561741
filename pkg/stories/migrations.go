package stories

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all story store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create stories table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stories (
					id BIGSERIAL PRIMARY KEY,
					project VARCHAR(255) NOT NULL,
					title VARCHAR(512) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL DEFAULT 'open',
					priority VARCHAR(16) NOT NULL DEFAULT 'medium',
					created_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_stories_project ON stories(project);
				CREATE INDEX idx_stories_project_status ON stories(project, status);
				CREATE INDEX idx_stories_created_by ON stories(created_by);
			`,
		},
		{
			Version:     2,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
					title VARCHAR(512) NOT NULL,
					done BOOLEAN NOT NULL DEFAULT FALSE,
					created_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tasks_story_id ON tasks(story_id);
			`,
		},
		{
			Version:     3,
			Description: "Create doc_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS doc_entries (
					id BIGSERIAL PRIMARY KEY,
					story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
					body TEXT NOT NULL,
					created_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_doc_entries_story_id ON doc_entries(story_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stories_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM stories_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stories_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
