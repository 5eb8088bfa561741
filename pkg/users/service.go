package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bubbleup/bubbleup/pkg/audit"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

// ErrInvalidProject indicates an unusable project scope
var ErrInvalidProject = errors.New("invalid project")

// UserSummary merges a provider account with its role assignments
type UserSummary struct {
	Account     identity.Account      `json:"account"`
	Assignments []rbac.RoleAssignment `json:"assignments"`
}

// Service implements user lifecycle operations
type Service struct {
	store  *rbac.Store
	admin  identity.Admin
	audit  audit.Logger
	logger *observability.Logger
}

// NewService creates a user lifecycle service
func NewService(store *rbac.Store, admin identity.Admin, auditLogger audit.Logger, logger *observability.Logger) *Service {
	return &Service{
		store:  store,
		admin:  admin,
		audit:  auditLogger,
		logger: logger,
	}
}

// validateProject accepts any non-empty project name or the wildcard.
// There is no project registry; admins name projects freely.
func validateProject(project string) error {
	if strings.TrimSpace(project) == "" {
		return fmt.Errorf("%w: project name must not be empty", ErrInvalidProject)
	}
	return nil
}

// Invite creates an account for the email (the provider sends the
// invitation) and grants the role on the project. Inviting an existing
// account just grants the role.
func (s *Service) Invite(ctx context.Context, actor, email, project string, role rbac.Role) (*UserSummary, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}

	account, err := s.admin.GetAccountByEmail(ctx, email)
	if errors.Is(err, identity.ErrAccountNotFound) {
		account, err = s.admin.CreateAccount(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to provision account for %s: %w", email, err)
	}

	assignment := &rbac.RoleAssignment{
		UserID:    account.ID,
		Project:   project,
		Role:      role,
		GrantedBy: actor,
	}
	if err := s.store.Upsert(ctx, assignment); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "user.invite", project, "user/"+account.ID, string(role))

	return &UserSummary{
		Account:     *account,
		Assignments: []rbac.RoleAssignment{*assignment},
	}, nil
}

// AssignRole grants or replaces the user's role on a project
func (s *Service) AssignRole(ctx context.Context, actor, userID, project string, role rbac.Role) (*rbac.RoleAssignment, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}

	// The account must exist; granting roles to unknown IDs would strand
	// assignments the reconciler can never match to an account.
	if _, err := s.admin.GetAccount(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to look up account %s: %w", userID, err)
	}

	assignment := &rbac.RoleAssignment{
		UserID:    userID,
		Project:   project,
		Role:      role,
		GrantedBy: actor,
	}
	if err := s.store.Upsert(ctx, assignment); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "role.grant", project, "user/"+userID, string(role))
	return assignment, nil
}

// RevokeRole removes the user's grant on a project. When it was the user's
// last grant the account itself is deleted at the provider.
//
// The returned warning is non-empty when the grant was revoked but the
// account cleanup failed; the reconciler retries that cleanup out of band.
func (s *Service) RevokeRole(ctx context.Context, actor, userID, project string) (warning string, err error) {
	if err := validateProject(project); err != nil {
		return "", err
	}

	if err := s.store.Delete(ctx, userID, project); err != nil {
		return "", err
	}
	s.recordAudit(ctx, actor, "role.revoke", project, "user/"+userID, "")

	remaining, err := s.store.CountForUser(ctx, userID)
	if err != nil {
		// The revocation itself succeeded
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to count remaining grants")
		return "role revoked, but account cleanup could not be verified; it will be retried", nil
	}
	if remaining > 0 {
		return "", nil
	}

	if err := s.deleteAccount(ctx, actor, userID); err != nil {
		return "role revoked, but account deletion failed; it will be retried", nil
	}
	return "", nil
}

// DeleteUser removes all of the user's grants and the account itself
func (s *Service) DeleteUser(ctx context.Context, actor, userID string) (warning string, err error) {
	assignments, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}

	for _, a := range assignments {
		if err := s.store.Delete(ctx, a.UserID, a.Project); err != nil && !errors.Is(err, rbac.ErrAssignmentNotFound) {
			return "", err
		}
	}
	s.recordAudit(ctx, actor, "user.delete", "", "user/"+userID, "")

	if err := s.deleteAccount(ctx, actor, userID); err != nil {
		return "grants revoked, but account deletion failed; it will be retried", nil
	}
	return "", nil
}

// deleteAccount removes the provider account, treating "already gone" as
// success so retries stay idempotent.
func (s *Service) deleteAccount(ctx context.Context, actor, userID string) error {
	err := s.admin.DeleteAccount(ctx, userID)
	if err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to delete account at identity provider")
		return err
	}
	s.recordAudit(ctx, actor, "account.delete", "", "user/"+userID, "")
	return nil
}

// ResetPassword produces a one-time recovery link for the email
func (s *Service) ResetPassword(ctx context.Context, actor, email string) (string, error) {
	link, err := s.admin.GenerateRecoveryLink(ctx, email)
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, actor, "user.reset_password", "", "email/"+email, "")
	return link, nil
}

// ListUsers returns every provider account merged with its assignments
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	accounts, err := s.admin.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	assignments, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]rbac.RoleAssignment)
	for _, a := range assignments {
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}

	summaries := make([]UserSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, UserSummary{
			Account:     account,
			Assignments: byUser[account.ID],
		})
	}
	return summaries, nil
}

// ListProjectRoles returns the assignments scoped to one project
func (s *Service) ListProjectRoles(ctx context.Context, project string) ([]rbac.RoleAssignment, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}
	return s.store.ListByProject(ctx, project)
}

func (s *Service) recordAudit(ctx context.Context, actor, action, project, resource, detail string) {
	entry := audit.Entry{
		Actor:    actor,
		Action:   action,
		Project:  project,
		Resource: resource,
		Detail:   detail,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("failed to record audit entry")
	}
}
