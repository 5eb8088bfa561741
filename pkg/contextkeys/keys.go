// Package contextkeys provides centralized context key definitions.
//
// IMPORTANT: All context keys used across the application must be defined
// here. This prevents typos, documents dependencies, and makes key usage
// discoverable.
//
// Usage:
//
//	import "github.com/bubbleup/bubbleup/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.AuthKey, authCtx)
//	authCtx := ctx.Value(contextkeys.AuthKey).(*rbac.AuthContext)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *rbac.AuthContext
	// Set by: rbac middleware (pkg/rbac/middleware.go)
	// Required by: All protected API endpoints
	// Type: *rbac.AuthContext
	AuthKey Key = "auth_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID (pkg/middleware/requestid.go)
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: rbac middleware after credential verification
	// Used by: Logger, audit trail, user-scoped operations
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.Logging (pkg/middleware/logging.go)
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)
