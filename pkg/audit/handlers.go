package audit

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/bubbleup/bubbleup/pkg/httputil"
)

// Handlers exposes the audit trail read endpoint
type Handlers struct {
	store  *SQLLogger
	logger *logrus.Logger
}

// NewHandlers creates the audit handlers
func NewHandlers(store *SQLLogger, logger *logrus.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// ListProjectAudit handles GET /api/v1/projects/{project}/audit. The limit
// query parameter caps the page; the store enforces its own bounds.
func (h *Handlers) ListProjectAudit(w http.ResponseWriter, r *http.Request) {
	project, ok := httputil.ParsePathStringOrError(w, r, "project")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	entries, err := h.store.ListByProject(r.Context(), project, limit)
	if err != nil {
		h.logger.WithError(err).WithField("project", project).Error("Failed to list audit entries")
		httputil.WriteAPIError(w, httputil.Infrastructure("failed to list audit entries", err))
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"project": project,
		"entries": entries,
	})
}
