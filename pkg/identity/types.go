package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredential indicates the bearer credential failed verification
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrAccountNotFound indicates the provider has no account for the given ID or email
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists indicates an account already exists for the given email
	ErrAccountExists = errors.New("account already exists")
)

// Identity is the verified identity behind a bearer credential
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Account is a user account at the identity provider
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Verifier verifies bearer credentials against the identity provider
type Verifier interface {
	// VerifyCredential validates the raw bearer credential and returns the
	// identity it belongs to, or ErrInvalidCredential.
	VerifyCredential(ctx context.Context, credential string) (*Identity, error)
}

// Admin manages user accounts through the provider's management API
type Admin interface {
	// CreateAccount invites a new user by email. The provider sends the
	// invitation email itself.
	CreateAccount(ctx context.Context, email string) (*Account, error)

	// DeleteAccount removes the account. Deleting an account that does not
	// exist returns ErrAccountNotFound.
	DeleteAccount(ctx context.Context, userID string) error

	// GenerateRecoveryLink produces a one-time password recovery link for
	// the given email.
	GenerateRecoveryLink(ctx context.Context, email string) (string, error)

	// GetAccount fetches a single account by ID.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// GetAccountByEmail fetches a single account by email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// ListAccounts returns all accounts known to the provider.
	ListAccounts(ctx context.Context) ([]Account, error)
}

// Provider combines credential verification and account administration
type Provider interface {
	Verifier
	Admin
}
