package stories

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bubbleup/bubbleup/pkg/audit"
	"github.com/bubbleup/bubbleup/pkg/httputil"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

// Handlers exposes the story, task and documentation endpoints
type Handlers struct {
	store  *Store
	audit  audit.Logger
	logger *logrus.Logger
}

// NewHandlers creates the story handlers
func NewHandlers(store *Store, auditLogger audit.Logger, logger *logrus.Logger) *Handlers {
	return &Handlers{store: store, audit: auditLogger, logger: logger}
}

// requireCapability fetches the auth context and checks one capability
// flag, writing the rejection itself. Returns nil when the caller may not
// proceed.
func (h *Handlers) requireCapability(w http.ResponseWriter, r *http.Request, allowed func(rbac.Capabilities) bool, operation string) *rbac.AuthContext {
	authCtx := rbac.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteAPIError(w, httputil.Unauthenticated("authentication required"))
		return nil
	}

	if !allowed(authCtx.Capabilities) {
		actual := "none"
		if authCtx.Role != "" {
			actual = string(authCtx.Role)
		}
		httputil.WriteAPIError(w, httputil.Forbidden(fmt.Sprintf(
			"role %s does not permit %s on project %s", actual, operation, authCtx.Project,
		)))
		return nil
	}

	return authCtx
}

// pathID parses a numeric path variable
func pathID(r *http.Request, key string) (int64, error) {
	raw, ok := mux.Vars(r)[key]
	if !ok {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return id, nil
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, ErrStoryNotFound):
		httputil.WriteAPIError(w, httputil.NotFound("story not found"))
	case errors.Is(err, ErrTaskNotFound):
		httputil.WriteAPIError(w, httputil.NotFound("task not found"))
	default:
		h.logger.WithError(err).Errorf("Failed to %s", operation)
		httputil.WriteAPIError(w, httputil.Infrastructure("failed to "+operation, err))
	}
}

func (h *Handlers) recordAudit(r *http.Request, authCtx *rbac.AuthContext, action, resource, detail string) {
	entry := audit.Entry{
		Actor:    authCtx.UserID,
		Action:   action,
		Project:  authCtx.Project,
		Resource: resource,
		Detail:   detail,
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("Failed to record audit entry")
	}
}

// contributorOwns applies the ownership restriction layered on top of the
// coarse CanEdit flag: a contributor may only modify items they created.
func contributorOwns(authCtx *rbac.AuthContext, createdBy string) bool {
	if authCtx.Role != rbac.RoleContributor {
		return true
	}
	return createdBy == authCtx.UserID
}

// ListStories handles GET /api/v1/stories?project=
func (h *Handlers) ListStories(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanView }, "viewing stories")
	if authCtx == nil {
		return
	}

	var filter ListFilter
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
			return
		}
		filter.Status = status
	}
	if raw := httputil.ParseQueryString(r, "priority", ""); raw != "" {
		priority, err := ParsePriority(raw)
		if err != nil {
			httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
			return
		}
		filter.Priority = priority
	}
	if httputil.ParseQueryString(r, "mine", "") == "true" {
		filter.CreatedBy = authCtx.UserID
	}

	list, err := h.store.ListStories(r.Context(), authCtx.Project, filter)
	if err != nil {
		h.writeStoreError(w, err, "list stories")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"project": authCtx.Project,
		"stories": list,
	})
}

// CreateStory handles POST /api/v1/stories
func (h *Handlers) CreateStory(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanCreate }, "creating stories")
	if authCtx == nil {
		return
	}

	var req struct {
		Project     string `json:"project"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteAPIError(w, httputil.BadRequest("title is required"))
		return
	}
	// ALL is a role scope, not a project; stories always belong to one project.
	if authCtx.Project == rbac.ProjectWildcard {
		httputil.WriteAPIError(w, httputil.BadRequest("stories cannot be created in the reserved ALL scope"))
		return
	}

	priority := PriorityMedium
	if req.Priority != "" {
		var err error
		if priority, err = ParsePriority(req.Priority); err != nil {
			httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
			return
		}
	}

	story := &Story{
		Project:     authCtx.Project,
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusOpen,
		Priority:    priority,
		CreatedBy:   authCtx.UserID,
	}
	if err := h.store.CreateStory(r.Context(), story); err != nil {
		h.writeStoreError(w, err, "create story")
		return
	}

	h.recordAudit(r, authCtx, "story.create", fmt.Sprintf("story/%d", story.ID), story.Title)
	httputil.WriteCreated(w, story)
}

// GetStory handles GET /api/v1/stories/{id}?project=
func (h *Handlers) GetStory(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanView }, "viewing stories")
	if authCtx == nil {
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	story, err := h.store.GetStory(r.Context(), id, authCtx.Project)
	if err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	httputil.WriteSuccess(w, story)
}

// UpdateStory handles PUT /api/v1/stories/{id}
func (h *Handlers) UpdateStory(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanEdit }, "editing stories")
	if authCtx == nil {
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	story, err := h.store.GetStory(r.Context(), id, authCtx.Project)
	if err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	if !contributorOwns(authCtx, story.CreatedBy) {
		httputil.WriteAPIError(w, httputil.Forbidden("contributors may only edit stories they created"))
		return
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			httputil.WriteAPIError(w, httputil.BadRequest("title cannot be empty"))
			return
		}
		story.Title = *req.Title
	}
	if req.Description != nil {
		story.Description = *req.Description
	}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
			return
		}
		story.Status = status
	}
	if req.Priority != nil {
		priority, err := ParsePriority(*req.Priority)
		if err != nil {
			httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
			return
		}
		story.Priority = priority
	}

	if err := h.store.UpdateStory(r.Context(), story); err != nil {
		h.writeStoreError(w, err, "update story")
		return
	}

	h.recordAudit(r, authCtx, "story.update", fmt.Sprintf("story/%d", story.ID), "")
	httputil.WriteSuccess(w, story)
}

// DeleteStory handles DELETE /api/v1/stories/{id}?project=
func (h *Handlers) DeleteStory(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanDelete }, "deleting stories")
	if authCtx == nil {
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if err := h.store.DeleteStory(r.Context(), id, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "delete story")
		return
	}

	h.recordAudit(r, authCtx, "story.delete", fmt.Sprintf("story/%d", id), "")
	httputil.WriteNoContent(w)
}

// CreateTask handles POST /api/v1/stories/{id}/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanCreate }, "creating tasks")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	// The story must exist in the caller's project
	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteAPIError(w, httputil.BadRequest("title is required"))
		return
	}

	task := &Task{
		StoryID:   storyID,
		Title:     req.Title,
		CreatedBy: authCtx.UserID,
	}
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		h.writeStoreError(w, err, "create task")
		return
	}

	h.recordAudit(r, authCtx, "task.create", fmt.Sprintf("story/%d/task/%d", storyID, task.ID), task.Title)
	httputil.WriteCreated(w, task)
}

// ListTasks handles GET /api/v1/stories/{id}/tasks?project=
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanView }, "viewing tasks")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	tasks, err := h.store.ListTasks(r.Context(), storyID)
	if err != nil {
		h.writeStoreError(w, err, "list tasks")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"story_id": storyID,
		"tasks":    tasks,
	})
}

// UpdateTask handles PUT /api/v1/stories/{id}/tasks/{taskId}; used for both
// renaming and toggling completion.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanEdit }, "editing tasks")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID, storyID)
	if err != nil {
		h.writeStoreError(w, err, "get task")
		return
	}

	if !contributorOwns(authCtx, task.CreatedBy) {
		httputil.WriteAPIError(w, httputil.Forbidden("contributors may only edit tasks they created"))
		return
	}

	var req struct {
		Title *string `json:"title"`
		Done  *bool   `json:"done"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			httputil.WriteAPIError(w, httputil.BadRequest("title cannot be empty"))
			return
		}
		task.Title = *req.Title
	}
	if req.Done != nil {
		task.Done = *req.Done
	}

	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		h.writeStoreError(w, err, "update task")
		return
	}

	h.recordAudit(r, authCtx, "task.update", fmt.Sprintf("story/%d/task/%d", storyID, taskID), "")
	httputil.WriteSuccess(w, task)
}

// DeleteTask handles DELETE /api/v1/stories/{id}/tasks/{taskId}?project=
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanDelete }, "deleting tasks")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	if err := h.store.DeleteTask(r.Context(), taskID, storyID); err != nil {
		h.writeStoreError(w, err, "delete task")
		return
	}

	h.recordAudit(r, authCtx, "task.delete", fmt.Sprintf("story/%d/task/%d", storyID, taskID), "")
	httputil.WriteNoContent(w)
}

// AddDocEntry handles POST /api/v1/stories/{id}/docs. The documentation log
// is append-only; there are no update or delete endpoints.
func (h *Handlers) AddDocEntry(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanCreate }, "adding documentation")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Body == "" {
		httputil.WriteAPIError(w, httputil.BadRequest("body is required"))
		return
	}

	entry := &DocEntry{
		StoryID:   storyID,
		Body:      req.Body,
		CreatedBy: authCtx.UserID,
	}
	if err := h.store.AddDocEntry(r.Context(), entry); err != nil {
		h.writeStoreError(w, err, "add documentation entry")
		return
	}

	h.recordAudit(r, authCtx, "doc.append", fmt.Sprintf("story/%d/doc/%d", storyID, entry.ID), "")
	httputil.WriteCreated(w, entry)
}

// ListDocEntries handles GET /api/v1/stories/{id}/docs?project=
func (h *Handlers) ListDocEntries(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireCapability(w, r, func(c rbac.Capabilities) bool { return c.CanView }, "viewing documentation")
	if authCtx == nil {
		return
	}

	storyID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAPIError(w, httputil.BadRequest(err.Error()))
		return
	}

	if _, err := h.store.GetStory(r.Context(), storyID, authCtx.Project); err != nil {
		h.writeStoreError(w, err, "get story")
		return
	}

	entries, err := h.store.ListDocEntries(r.Context(), storyID)
	if err != nil {
		h.writeStoreError(w, err, "list documentation entries")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"story_id": storyID,
		"entries":  entries,
	})
}
