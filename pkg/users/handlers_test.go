package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

func newTestRouter(t *testing.T) (*mux.Router, *identity.FakeProvider, *rbac.Store) {
	t.Helper()

	svc, provider, store := newTestService(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	h := NewHandlers(svc, logger)

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/users/invite", h.InviteUser).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/users/reset-password", h.ResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/users/{userId}/role", h.AssignRole).Methods(http.MethodPut)
	r.HandleFunc("/api/v1/users/{userId}/role", h.RevokeRole).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/users/{userId}", h.DeleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/projects/{project}/roles", h.ListProjectRoles).Methods(http.MethodGet)

	return r, provider, store
}

func adminRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	authCtx := &rbac.AuthContext{
		UserID:       "admin-1",
		Email:        "admin@example.com",
		Role:         rbac.RoleAdmin,
		Capabilities: rbac.Resolve(rbac.RoleAdmin),
	}
	return r.WithContext(rbac.WithAuthContext(r.Context(), authCtx))
}

func TestInviteUserHandler(t *testing.T) {
	router, provider, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodPost, "/api/v1/users/invite", map[string]string{
		"email":   "new@example.com",
		"project": "Foo",
		"role":    "contributor",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var summary UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.True(t, provider.HasAccount(summary.Account.ID))
	require.Len(t, summary.Assignments, 1)
	assert.Equal(t, "admin-1", summary.Assignments[0].GrantedBy)
}

func TestInviteUserHandlerLegacyRoleVocabulary(t *testing.T) {
	router, _, store := newTestRouter(t)

	// Older clients still send read_write for contributor
	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodPost, "/api/v1/users/invite", map[string]string{
		"email":   "legacy@example.com",
		"project": "Foo",
		"role":    "read_write",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	assignments, err := store.ListByProject(adminRequest(http.MethodGet, "/", nil).Context(), "Foo")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, rbac.RoleContributor, assignments[0].Role)
}

func TestInviteUserHandlerRejectsUnknownRole(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodPost, "/api/v1/users/invite", map[string]string{
		"email":   "x@example.com",
		"project": "Foo",
		"role":    "owner",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad_request")
}

func TestRevokeRoleHandlerWarning(t *testing.T) {
	router, provider, store := newTestRouter(t)
	ctx := adminRequest(http.MethodGet, "/", nil).Context()

	provider.AddAccount("u1", "u1@example.com")
	provider.DeleteErr = errors.New("provider down")
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodDelete, "/api/v1/users/u1/role?project=Foo", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status  string `json:"status"`
		Warning string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Warning)
}

func TestRevokeRoleHandlerMissingAssignment(t *testing.T) {
	router, provider, _ := newTestRouter(t)
	provider.AddAccount("u1", "u1@example.com")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodDelete, "/api/v1/users/u1/role?project=Foo", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProjectRolesHandler(t *testing.T) {
	router, _, store := newTestRouter(t)
	ctx := adminRequest(http.MethodGet, "/", nil).Context()

	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u1", Project: "Foo", Role: rbac.RoleEditor}))
	require.NoError(t, store.Upsert(ctx, &rbac.RoleAssignment{UserID: "u2", Project: "Bar", Role: rbac.RoleAdmin}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, adminRequest(http.MethodGet, "/api/v1/projects/Foo/roles", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
	assert.NotContains(t, w.Body.String(), "u2")
}
