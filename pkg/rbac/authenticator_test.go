package rbac

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleup/bubbleup/pkg/httputil"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
)

func newTestAuthenticator(t *testing.T, db *sql.DB) (*Authenticator, *identity.FakeProvider, *Store) {
	t.Helper()

	provider := identity.NewFakeProvider()
	store := NewStore(db)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	return NewAuthenticator(provider, store, logger, metrics), provider, store
}

func apiKind(t *testing.T, err error) httputil.Kind {
	t.Helper()
	var apiErr *httputil.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Kind
}

func TestAuthenticateMissingHeader(t *testing.T) {
	// The store is unusable; a missing header must still fail with 401
	// before any store or provider call is attempted.
	db := setupTestDB(t)
	db.Close()
	auth, _, _ := newTestAuthenticator(t, db)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories?project=Foo", nil)

	_, err := auth.Authenticate(r, nil, true)
	assert.Equal(t, httputil.KindUnauthenticated, apiKind(t, err))
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, _, _ := newTestAuthenticator(t, db)

	for _, header := range []string{"Basic abc", "Bearer", "Bearer ", "token"} {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
		r.Header.Set("Authorization", header)

		_, err := auth.Authenticate(r, nil, false)
		assert.Equal(t, httputil.KindUnauthenticated, apiKind(t, err), "header %q", header)
	}
}

func TestAuthenticateInvalidCredential(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, _, _ := newTestAuthenticator(t, db)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	r.Header.Set("Authorization", "Bearer unknown-token")

	_, err := auth.Authenticate(r, nil, false)
	assert.Equal(t, httputil.KindUnauthenticated, apiKind(t, err))
}

func TestAuthenticateProviderOutage(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, _ := newTestAuthenticator(t, db)
	provider.VerifyErr = errors.New("connection refused")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	r.Header.Set("Authorization", "Bearer some-token")

	_, err := auth.Authenticate(r, nil, false)
	assert.Equal(t, httputil.KindInfrastructure, apiKind(t, err))
}

func TestAuthenticateMissingProject(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, _ := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	_, err := auth.Authenticate(r, nil, true)
	assert.Equal(t, httputil.KindBadRequest, apiKind(t, err))
}

func TestAuthenticateExactRoleBeatsWildcard(t *testing.T) {
	// read_only on "Foo" plus admin on ALL: a request targeting Foo is
	// limited to read_only, so an edit-style endpoint rejects it.
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, store := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, &RoleAssignment{UserID: "u1", Project: "Foo", Role: RoleReadOnly}))
	require.NoError(t, store.Upsert(ctx, &RoleAssignment{UserID: "u1", Project: ProjectWildcard, Role: RoleAdmin}))

	r := httptest.NewRequest(http.MethodPut, "/api/v1/stories/1?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	authCtx, err := auth.Authenticate(r, nil, true)
	require.NoError(t, err)
	assert.Equal(t, RoleReadOnly, authCtx.Role)
	assert.False(t, authCtx.Capabilities.CanEdit)

	_, err = auth.Authenticate(r, []Role{RoleAdmin, RoleEditor, RoleContributor}, true)
	assert.Equal(t, httputil.KindForbidden, apiKind(t, err))
}

func TestAuthenticateWildcardGrantsOtherProjects(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, store := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	require.NoError(t, store.Upsert(context.Background(),
		&RoleAssignment{UserID: "u1", Project: ProjectWildcard, Role: RoleAdmin}))

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/stories/9?project=Bar", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	authCtx, err := auth.Authenticate(r, []Role{RoleAdmin}, true)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, authCtx.Role)
	assert.True(t, authCtx.Capabilities.CanDelete)
	assert.Equal(t, "Bar", authCtx.Project)
}

func TestAuthenticateForbiddenNamesRoles(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, store := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	require.NoError(t, store.Upsert(context.Background(),
		&RoleAssignment{UserID: "u1", Project: "Foo", Role: RoleContributor}))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/users/invite?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	_, err := auth.Authenticate(r, []Role{RoleAdmin, RoleEditor}, true)
	require.Error(t, err)
	assert.Equal(t, httputil.KindForbidden, apiKind(t, err))
	assert.Contains(t, err.Error(), "contributor")
	assert.Contains(t, err.Error(), "admin, editor")
}

func TestAuthenticateForbiddenNamesNoneForMissingGrant(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, _ := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	_, err := auth.Authenticate(r, []Role{RoleReadOnly, RoleContributor, RoleEditor, RoleAdmin}, true)
	require.Error(t, err)
	assert.Equal(t, httputil.KindForbidden, apiKind(t, err))
	assert.Contains(t, err.Error(), "none")
}

func TestAuthenticateNoGrantYieldsEmptyCapabilities(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, _ := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	// Empty requiredRoles admits any authenticated caller
	authCtx, err := auth.Authenticate(r, nil, true)
	require.NoError(t, err)
	assert.Equal(t, Role(""), authCtx.Role)
	assert.Equal(t, Capabilities{}, authCtx.Capabilities)
}

func TestAuthenticateStoreOutage(t *testing.T) {
	db := setupTestDB(t)
	auth, provider, _ := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")
	db.Close()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")

	// Role store failures are infrastructure errors, never "no grant"
	_, err := auth.Authenticate(r, nil, true)
	assert.Equal(t, httputil.KindInfrastructure, apiKind(t, err))
}

func TestAuthenticateProjectFromBody(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, store := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")

	require.NoError(t, store.Upsert(context.Background(),
		&RoleAssignment{UserID: "u1", Project: "Foo", Role: RoleEditor}))

	body := bytes.NewBufferString(`{"project":"Foo","title":"New story"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/stories", body)
	r.Header.Set("Authorization", "Bearer tok-u1")
	r.Header.Set("Content-Type", "application/json")

	authCtx, err := auth.Authenticate(r, []Role{RoleAdmin, RoleEditor, RoleContributor}, true)
	require.NoError(t, err)
	assert.Equal(t, "Foo", authCtx.Project)
	assert.Equal(t, RoleEditor, authCtx.Role)
}

func TestMiddlewareStoresAuthContext(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, provider, store := newTestAuthenticator(t, db)
	provider.AddToken("tok-u1", "u1", "u1@example.com")
	require.NoError(t, store.Upsert(context.Background(),
		&RoleAssignment{UserID: "u1", Project: "Foo", Role: RoleAdmin}))

	mw := NewMiddleware(auth)

	var got *AuthContext
	handler := mw.Require([]Role{RoleAdmin}, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories?project=Foo", nil)
	r.Header.Set("Authorization", "Bearer tok-u1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, RoleAdmin, got.Role)
}

func TestMiddlewareRejectsWithKind(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	auth, _, _ := newTestAuthenticator(t, db)
	mw := NewMiddleware(auth)

	handler := mw.Require([]Role{RoleAdmin}, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for unauthenticated request")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories?project=Foo", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthenticated")
}
