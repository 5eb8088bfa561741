// Package users manages user lifecycle: invitations, role grants and
// revocations, password recovery and account deletion.
//
// Accounts live at the external identity provider; role assignments live in
// the local store. Revoking a user's last assignment cascades into account
// deletion at the provider. The two systems cannot share a transaction, so
// the cascade is a two-phase sequence: revoke the grant, then delete the
// account if no grants remain. A failed second phase degrades to a warning
// and is retried by the orphaned-account reconciler.
package users
