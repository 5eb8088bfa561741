package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the audit log table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			actor VARCHAR(255) NOT NULL,
			action VARCHAR(128) NOT NULL,
			project VARCHAR(255) NOT NULL DEFAULT '',
			resource VARCHAR(255) NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_project ON audit_log(project);
		CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor);
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}
	return nil
}
