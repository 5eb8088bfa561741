package users

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/bubbleup/bubbleup/pkg/httputil"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

// Handlers exposes the user lifecycle endpoints. All routes are gated on
// the admin role by the authorization middleware before reaching here.
type Handlers struct {
	service *Service
	logger  *logrus.Logger
}

// NewHandlers creates the user handlers
func NewHandlers(service *Service, logger *logrus.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, ErrInvalidProject):
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
	case errors.Is(err, identity.ErrAccountNotFound):
		httputil.WriteAPIError(w, httputil.NotFound("account not found"))
	case errors.Is(err, identity.ErrAccountExists):
		httputil.WriteAPIError(w, httputil.Conflict("an account already exists for this email"))
	case errors.Is(err, rbac.ErrAssignmentNotFound):
		httputil.WriteAPIError(w, httputil.NotFound("role assignment not found"))
	default:
		h.logger.WithError(err).Errorf("Failed to %s", operation)
		httputil.WriteAPIError(w, httputil.Infrastructure("failed to "+operation, err))
	}
}

func actorID(r *http.Request) string {
	if authCtx := rbac.GetAuthContext(r); authCtx != nil {
		return authCtx.UserID
	}
	return ""
}

// InviteUser handles POST /api/v1/users/invite
func (h *Handlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Project string `json:"project"`
		Role    string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteAPIError(w, httputil.BadRequest("email is required"))
		return
	}

	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	summary, err := h.service.Invite(r.Context(), actorID(r), req.Email, req.Project, role)
	if err != nil {
		h.writeError(w, err, "invite user")
		return
	}

	httputil.WriteCreated(w, summary)
}

// AssignRole handles PUT /api/v1/users/{userId}/role
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	var req struct {
		Project string `json:"project"`
		Role    string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	assignment, err := h.service.AssignRole(r.Context(), actorID(r), userID, req.Project, role)
	if err != nil {
		h.writeError(w, err, "assign role")
		return
	}

	httputil.WriteSuccess(w, assignment)
}

// RevokeRole handles DELETE /api/v1/users/{userId}/role?project=
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	project := httputil.ProjectFromRequest(r)
	warning, err := h.service.RevokeRole(r.Context(), actorID(r), userID, project)
	if err != nil {
		h.writeError(w, err, "revoke role")
		return
	}

	if warning != "" {
		httputil.WriteSuccessWithWarning(w, "role revoked", warning)
		return
	}
	httputil.WriteSuccessMessage(w, "role revoked", nil)
}

// DeleteUser handles DELETE /api/v1/users/{userId}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	warning, err := h.service.DeleteUser(r.Context(), actorID(r), userID)
	if err != nil {
		h.writeError(w, err, "delete user")
		return
	}

	if warning != "" {
		httputil.WriteSuccessWithWarning(w, "user deleted", warning)
		return
	}
	httputil.WriteSuccessMessage(w, "user deleted", nil)
}

// ResetPassword handles POST /api/v1/users/reset-password
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteAPIError(w, httputil.BadRequest("email is required"))
		return
	}

	link, err := h.service.ResetPassword(r.Context(), actorID(r), req.Email)
	if err != nil {
		h.writeError(w, err, "generate recovery link")
		return
	}

	httputil.WriteSuccess(w, map[string]string{
		"recovery_link": link,
	})
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err, "list users")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users": summaries,
	})
}

// ListProjectRoles handles GET /api/v1/projects/{project}/roles
func (h *Handlers) ListProjectRoles(w http.ResponseWriter, r *http.Request) {
	project, ok := httputil.ParsePathStringOrError(w, r, "project")
	if !ok {
		return
	}

	assignments, err := h.service.ListProjectRoles(r.Context(), project)
	if err != nil {
		h.writeError(w, err, "list project roles")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"project":     project,
		"assignments": assignments,
	})
}
