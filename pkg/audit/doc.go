// Package audit records who did what to which resource. Mutating API
// handlers append an entry per operation; entries are never updated or
// deleted.
package audit
