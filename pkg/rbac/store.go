package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAssignmentNotFound indicates no role assignment exists for the
// requested (user, project) pair.
var ErrAssignmentNotFound = errors.New("role assignment not found")

// Store handles role assignment persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new role assignment store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindAssignment retrieves the assignment for an exact (user, project) pair.
// Returns ErrAssignmentNotFound when no row exists.
func (s *Store) FindAssignment(ctx context.Context, userID, project string) (*RoleAssignment, error) {
	query := `
		SELECT user_id, project, role, granted_by, granted_at, updated_at
		FROM role_assignments
		WHERE user_id = $1 AND project = $2
	`

	var a RoleAssignment
	var grantedBy sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID, project).Scan(
		&a.UserID,
		&a.Project,
		&a.Role,
		&grantedBy,
		&a.GrantedAt,
		&a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role assignment: %w", err)
	}

	if grantedBy.Valid {
		a.GrantedBy = grantedBy.String
	}

	return &a, nil
}

// EffectiveRole resolves the assignment that applies to the user on the
// given project: an exact-project assignment wins over a wildcard one, even
// when the wildcard role is more privileged. Returns (nil, nil) when the
// user holds no grant at all; store failures propagate as errors and are
// never folded into "no grant".
func (s *Store) EffectiveRole(ctx context.Context, userID, project string) (*RoleAssignment, error) {
	if project != ProjectWildcard {
		exact, err := s.FindAssignment(ctx, userID, project)
		if err == nil {
			return exact, nil
		}
		if !errors.Is(err, ErrAssignmentNotFound) {
			return nil, err
		}
	}

	wildcard, err := s.FindAssignment(ctx, userID, ProjectWildcard)
	if err == nil {
		return wildcard, nil
	}
	if errors.Is(err, ErrAssignmentNotFound) {
		return nil, nil
	}
	return nil, err
}

// Upsert creates or replaces the assignment for (user, project). Assigning
// a new role to an existing pair replaces the prior role in place.
func (s *Store) Upsert(ctx context.Context, a *RoleAssignment) error {
	if !a.Role.Valid() {
		return fmt.Errorf("invalid role %q", a.Role)
	}

	query := `
		INSERT INTO role_assignments (user_id, project, role, granted_by, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, project)
		DO UPDATE SET role = excluded.role, granted_by = excluded.granted_by, updated_at = excluded.updated_at
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		a.UserID,
		a.Project,
		a.Role,
		sql.NullString{String: a.GrantedBy, Valid: a.GrantedBy != ""},
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert role assignment: %w", err)
	}

	a.GrantedAt = now
	a.UpdatedAt = now
	return nil
}

// Delete removes the assignment for (user, project). Returns
// ErrAssignmentNotFound when no row existed.
func (s *Store) Delete(ctx context.Context, userID, project string) error {
	query := `DELETE FROM role_assignments WHERE user_id = $1 AND project = $2`

	result, err := s.db.ExecContext(ctx, query, userID, project)
	if err != nil {
		return fmt.Errorf("failed to delete role assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}

	return nil
}

// CountForUser returns how many assignments the user holds across all
// project scopes. Used to decide whether revoking a grant orphans the
// user's account.
func (s *Store) CountForUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM role_assignments WHERE user_id = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count role assignments: %w", err)
	}
	return count, nil
}

// CountAssignments returns the total number of assignments across all users
// and scopes. Feeds the role-assignment gauge.
func (s *Store) CountAssignments(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM role_assignments`

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count role assignments: %w", err)
	}
	return count, nil
}

// ListByUser returns all assignments held by one user
func (s *Store) ListByUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	query := `
		SELECT user_id, project, role, granted_by, granted_at, updated_at
		FROM role_assignments
		WHERE user_id = $1
		ORDER BY project ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListByProject returns all assignments scoped to one project. Wildcard
// grants are not included; callers that need them ask for ProjectWildcard
// explicitly.
func (s *Store) ListByProject(ctx context.Context, project string) ([]RoleAssignment, error) {
	query := `
		SELECT user_id, project, role, granted_by, granted_at, updated_at
		FROM role_assignments
		WHERE project = $1
		ORDER BY user_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListAll returns every assignment in the store
func (s *Store) ListAll(ctx context.Context) ([]RoleAssignment, error) {
	query := `
		SELECT user_id, project, role, granted_by, granted_at, updated_at
		FROM role_assignments
		ORDER BY user_id ASC, project ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListUserIDs returns the distinct user IDs holding at least one assignment
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM role_assignments ORDER BY user_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanAssignments(rows *sql.Rows) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var grantedBy sql.NullString

		err := rows.Scan(
			&a.UserID,
			&a.Project,
			&a.Role,
			&grantedBy,
			&a.GrantedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}

		if grantedBy.Valid {
			a.GrantedBy = grantedBy.String
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}
