package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

// OIDCVerifier verifies bearer credentials as OIDC ID tokens
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	metrics  *observability.Metrics
}

// NewOIDCVerifier discovers the issuer and builds a token verifier.
// Discovery performs a network round trip, so callers should pass a
// context with a deadline.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, metrics *observability.Metrics) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuerURL, err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		metrics:  metrics,
	}, nil
}

// VerifyCredential validates the raw token and extracts the identity
func (v *OIDCVerifier) VerifyCredential(ctx context.Context, credential string) (*Identity, error) {
	start := time.Now()

	token, err := v.verifier.Verify(ctx, credential)
	if err != nil {
		v.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		v.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidCredential, err)
	}
	if claims.Email == "" {
		v.observe("verify", "error", start)
		return nil, fmt.Errorf("%w: token carries no email claim", ErrInvalidCredential)
	}

	v.observe("verify", "ok", start)
	return &Identity{
		UserID: token.Subject,
		Email:  claims.Email,
	}, nil
}

func (v *OIDCVerifier) observe(operation, status string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.IdentityCallsTotal.WithLabelValues(operation, status).Inc()
	v.metrics.IdentityCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
