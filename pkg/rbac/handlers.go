package rbac

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/bubbleup/bubbleup/pkg/httputil"
)

// Handlers exposes capability introspection endpoints
type Handlers struct {
	store  *Store
	logger *logrus.Logger
}

// NewHandlers creates the introspection handlers
func NewHandlers(store *Store, logger *logrus.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// GetMyPermissions returns the caller's resolved role and capability set for
// the requested project. The heavy lifting already happened in the
// authorization middleware; this just echoes the decision so UIs can adapt.
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteAPIError(w, httputil.Unauthenticated("authentication required"))
		return
	}

	httputil.WriteSuccess(w, authCtx)
}

// GetMyRoleAssignments lists every grant the caller holds across projects
func (h *Handlers) GetMyRoleAssignments(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteAPIError(w, httputil.Unauthenticated("authentication required"))
		return
	}

	assignments, err := h.store.ListByUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", authCtx.UserID).Error("Failed to list role assignments")
		httputil.WriteAPIError(w, httputil.Infrastructure("failed to list role assignments", err))
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"assignments": assignments,
	})
}
