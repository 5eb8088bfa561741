package users

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleup/bubbleup/pkg/audit"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE role_assignments (
			user_id TEXT NOT NULL,
			project TEXT NOT NULL,
			role TEXT NOT NULL,
			granted_by TEXT,
			granted_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, project)
		);
	`)
	require.NoError(t, err)

	return db
}

func newTestService(t *testing.T) (*Service, *identity.FakeProvider, *rbac.Store) {
	t.Helper()

	db := setupTestDB(t)
	store := rbac.NewStore(db)
	provider := identity.NewFakeProvider()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	return NewService(store, provider, audit.NoOpLogger{}, logger), provider, store
}

func TestInviteNewUser(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	summary, err := svc.Invite(ctx, "admin-1", "new@example.com", "Foo", rbac.RoleContributor)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", summary.Account.Email)
	assert.True(t, provider.HasAccount(summary.Account.ID))

	effective, err := store.EffectiveRole(ctx, summary.Account.ID, "Foo")
	require.NoError(t, err)
	require.NotNil(t, effective)
	assert.Equal(t, rbac.RoleContributor, effective.Role)
	assert.Equal(t, "admin-1", effective.GrantedBy)
}

func TestInviteExistingAccountJustGrantsRole(t *testing.T) {
	svc, provider, store := newTestService(t)
	provider.AddAccount("u1", "existing@example.com")

	summary, err := svc.Invite(context.Background(), "admin-1", "existing@example.com", "Foo", rbac.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, "u1", summary.Account.ID)

	assignments, err := store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, rbac.RoleEditor, assignments[0].Role)
}

func TestInviteRejectsEmptyProject(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Invite(context.Background(), "admin-1", "x@example.com", "  ", rbac.RoleEditor)
	assert.ErrorIs(t, err, ErrInvalidProject)
}

func TestAssignRoleUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AssignRole(context.Background(), "admin-1", "ghost", "Foo", rbac.RoleEditor)
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
}

func TestRevokeNonLastRoleKeepsAccount(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.AddAccount("u1", "u1@example.com")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Bar", Role: rbac.RoleReadOnly}))

	warning, err := svc.RevokeRole(ctx, "admin-1", "u1", "Foo")
	require.NoError(t, err)
	assert.Empty(t, warning)

	// Zero account-deletion attempts for a non-last revoke
	assert.Equal(t, 0, provider.DeleteCount("u1"))
	assert.True(t, provider.HasAccount("u1"))
}

func TestRevokeLastRoleDeletesAccountExactlyOnce(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.AddAccount("u1", "u1@example.com")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))

	warning, err := svc.RevokeRole(ctx, "admin-1", "u1", "Foo")
	require.NoError(t, err)
	assert.Empty(t, warning)

	assert.Equal(t, 1, provider.DeleteCount("u1"))
	assert.False(t, provider.HasAccount("u1"))
}

func TestRevokeMissingAssignment(t *testing.T) {
	svc, provider, _ := newTestService(t)
	provider.AddAccount("u1", "u1@example.com")

	_, err := svc.RevokeRole(context.Background(), "admin-1", "u1", "Foo")
	assert.ErrorIs(t, err, rbac.ErrAssignmentNotFound)
	assert.Equal(t, 0, provider.DeleteCount("u1"))
}

func TestRevokeLastRoleAccountDeletionFailureDegradesToWarning(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.AddAccount("u1", "u1@example.com")
	provider.DeleteErr = errors.New("provider down")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))

	// The primary effect (revocation) succeeded, so this is not an error
	warning, err := svc.RevokeRole(ctx, "admin-1", "u1", "Foo")
	require.NoError(t, err)
	assert.NotEmpty(t, warning)

	count, err := store.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRevokeLastRoleAccountAlreadyGone(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	// No account at the provider, only a stale grant: cleanup is idempotent
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "gone", Project: "Foo", Role: rbac.RoleEditor}))

	warning, err := svc.RevokeRole(ctx, "admin-1", "gone", "Foo")
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, 1, provider.DeleteCount("gone"))
}

func TestDeleteUserRemovesAllGrantsAndAccount(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.AddAccount("u1", "u1@example.com")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: rbac.ProjectWildcard, Role: rbac.RoleReadOnly}))

	warning, err := svc.DeleteUser(ctx, "admin-1", "u1")
	require.NoError(t, err)
	assert.Empty(t, warning)

	count, err := store.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, provider.HasAccount("u1"))
}

func TestResetPassword(t *testing.T) {
	svc, provider, _ := newTestService(t)
	provider.AddAccount("u1", "u1@example.com")

	link, err := svc.ResetPassword(context.Background(), "admin-1", "u1@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, link)

	_, err = svc.ResetPassword(context.Background(), "admin-1", "nobody@example.com")
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
}

func TestListUsersMergesAssignments(t *testing.T) {
	svc, provider, store := newTestService(t)
	ctx := context.Background()

	provider.AddAccount("u1", "u1@example.com")
	provider.AddAccount("u2", "u2@example.com")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleAdmin}))

	summaries, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := make(map[string]UserSummary)
	for _, s := range summaries {
		byID[s.Account.ID] = s
	}
	assert.Len(t, byID["u1"].Assignments, 1)
	assert.Empty(t, byID["u2"].Assignments)
}
