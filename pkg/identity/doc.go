// Package identity integrates with the external identity provider.
//
// BubbleUp never stores passwords. Credential verification is delegated to
// the provider's OIDC issuer, and account lifecycle (invitations, deletion,
// password recovery links) goes through the provider's management API.
package identity
