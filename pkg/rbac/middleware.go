package rbac

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bubbleup/bubbleup/pkg/contextkeys"
	"github.com/bubbleup/bubbleup/pkg/httputil"
)

// Middleware gates routes on an authorization decision
type Middleware struct {
	authenticator *Authenticator
}

// NewMiddleware creates authorization middleware backed by the given
// authenticator.
func NewMiddleware(authenticator *Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// Require produces mux middleware that authenticates the request and
// requires the effective role to be one of requiredRoles. An empty role
// list admits any authenticated caller. The resulting AuthContext is
// stored on the request context for the handler.
func (m *Middleware) Require(requiredRoles []Role, requireProject bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := m.authenticator.Authenticate(r, requiredRoles, requireProject)
			if err != nil {
				httputil.WriteAPIError(w, err)
				return
			}

			ctx := WithAuthContext(r.Context(), authCtx)
			ctx = context.WithValue(ctx, contextkeys.UserIDKey, authCtx.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated admits any caller with a valid credential,
// regardless of role.
func (m *Middleware) RequireAuthenticated() mux.MiddlewareFunc {
	return m.Require(nil, false)
}

// WithAuthContext stores the authorization context on the request context
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, contextkeys.AuthKey, authCtx)
}

// GetAuthContext retrieves the authorization context set by Require.
// Returns nil when the request did not pass through the middleware.
func GetAuthContext(r *http.Request) *AuthContext {
	authCtx, _ := r.Context().Value(contextkeys.AuthKey).(*AuthContext)
	return authCtx
}
