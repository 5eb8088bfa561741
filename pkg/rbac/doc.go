// Package rbac implements BubbleUp's authorization core: role assignments,
// effective-role lookup, capability resolution and request authentication.
//
// A role assignment grants one user one role on one project scope. The scope
// is either a literal project name or the reserved wildcard "ALL". An exact
// project assignment always beats a wildcard assignment, even when the
// wildcard role is more privileged.
//
// Role assignments are never cached in process. Every request re-queries the
// store, so role changes take effect on the next request.
package rbac
