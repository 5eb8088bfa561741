package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeProvider is an in-memory Provider for tests
type FakeProvider struct {
	mu       sync.Mutex
	tokens   map[string]Identity
	accounts map[string]Account // keyed by account ID

	// DeletedIDs records every DeleteAccount call, including repeats
	DeletedIDs []string

	// Failure injection
	VerifyErr   error
	CreateErr   error
	DeleteErr   error
	RecoveryErr error
	ListErr     error
}

// NewFakeProvider creates an empty fake provider
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		tokens:   make(map[string]Identity),
		accounts: make(map[string]Account),
	}
}

// AddToken registers a credential that verifies to the given identity,
// creating a matching account.
func (f *FakeProvider) AddToken(token, userID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = Identity{UserID: userID, Email: email}
	f.accounts[userID] = Account{ID: userID, Email: email, CreatedAt: time.Now()}
}

// AddAccount registers an account without a credential
func (f *FakeProvider) AddAccount(userID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[userID] = Account{ID: userID, Email: email, CreatedAt: time.Now()}
}

// SetAccount stores an account verbatim, letting tests control timestamps
func (f *FakeProvider) SetAccount(account Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
}

// HasAccount reports whether the account still exists
func (f *FakeProvider) HasAccount(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[userID]
	return ok
}

// DeleteCount returns how many times DeleteAccount was called for the ID
func (f *FakeProvider) DeleteCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.DeletedIDs {
		if id == userID {
			n++
		}
	}
	return n
}

// VerifyCredential implements Verifier
func (f *FakeProvider) VerifyCredential(ctx context.Context, credential string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	id, ok := f.tokens[credential]
	if !ok {
		return nil, ErrInvalidCredential
	}
	return &id, nil
}

// CreateAccount implements Admin
func (f *FakeProvider) CreateAccount(ctx context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	for _, a := range f.accounts {
		if a.Email == email {
			return nil, ErrAccountExists
		}
	}
	account := Account{ID: uuid.New().String(), Email: email, CreatedAt: time.Now()}
	f.accounts[account.ID] = account
	return &account, nil
}

// DeleteAccount implements Admin
func (f *FakeProvider) DeleteAccount(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedIDs = append(f.DeletedIDs, userID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.accounts[userID]; !ok {
		return ErrAccountNotFound
	}
	delete(f.accounts, userID)
	return nil
}

// GenerateRecoveryLink implements Admin
func (f *FakeProvider) GenerateRecoveryLink(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RecoveryErr != nil {
		return "", f.RecoveryErr
	}
	for _, a := range f.accounts {
		if a.Email == email {
			return "https://idp.test/recovery?email=" + email, nil
		}
	}
	return "", ErrAccountNotFound
}

// GetAccount implements Admin
func (f *FakeProvider) GetAccount(ctx context.Context, userID string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

// GetAccountByEmail implements Admin
func (f *FakeProvider) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			account := a
			return &account, nil
		}
	}
	return nil, ErrAccountNotFound
}

// ListAccounts implements Admin
func (f *FakeProvider) ListAccounts(ctx context.Context) ([]Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	return out, nil
}
