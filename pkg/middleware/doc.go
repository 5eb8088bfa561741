// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, metrics and Redis-backed rate limiting. Authorization
// middleware lives in pkg/rbac next to the decision logic it applies.
package middleware
