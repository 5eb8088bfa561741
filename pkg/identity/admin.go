package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

// AdminClientConfig configures the management API client
type AdminClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Audience     string

	// RedirectTo is appended to recovery links so the provider sends the
	// user back to BubbleUp after resetting their password.
	RedirectTo string
}

// AdminClient talks to the identity provider's management REST API using
// client-credentials OAuth2.
type AdminClient struct {
	baseURL    string
	httpClient *http.Client
	redirectTo string
	metrics    *observability.Metrics
}

// NewAdminClient builds a management API client. The underlying HTTP client
// fetches and refreshes its own access token.
func NewAdminClient(ctx context.Context, cfg AdminClientConfig, metrics *observability.Metrics) (*AdminClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("admin API base URL is required")
	}

	ccfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Audience != "" {
		ccfg.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	client := ccfg.Client(ctx)
	client.Timeout = 15 * time.Second

	return &AdminClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: client,
		redirectTo: cfg.RedirectTo,
		metrics:    metrics,
	}, nil
}

// CreateAccount invites a new user by email
func (c *AdminClient) CreateAccount(ctx context.Context, email string) (*Account, error) {
	body := map[string]interface{}{
		"email":        email,
		"send_invite":  true,
		"email_verify": true,
	}

	var account Account
	err := c.do(ctx, "create_account", http.MethodPost, "/users", body, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes the account from the provider
func (c *AdminClient) DeleteAccount(ctx context.Context, userID string) error {
	return c.do(ctx, "delete_account", http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil)
}

// GenerateRecoveryLink produces a one-time password recovery link
func (c *AdminClient) GenerateRecoveryLink(ctx context.Context, email string) (string, error) {
	body := map[string]interface{}{
		"type":  "recovery",
		"email": email,
	}
	if c.redirectTo != "" {
		body["redirect_to"] = c.redirectTo
	}

	var resp struct {
		ActionLink string `json:"action_link"`
	}
	if err := c.do(ctx, "recovery_link", http.MethodPost, "/generate_link", body, &resp); err != nil {
		return "", err
	}
	if resp.ActionLink == "" {
		return "", fmt.Errorf("provider returned an empty recovery link")
	}
	return resp.ActionLink, nil
}

// GetAccount fetches a single account by ID
func (c *AdminClient) GetAccount(ctx context.Context, userID string) (*Account, error) {
	var account Account
	err := c.do(ctx, "get_account", http.MethodGet, "/users/"+url.PathEscape(userID), nil, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByEmail fetches a single account by email
func (c *AdminClient) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var resp struct {
		Users []Account `json:"users"`
	}
	path := "/users?email=" + url.QueryEscape(email)
	if err := c.do(ctx, "get_account_by_email", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Users {
		if strings.EqualFold(resp.Users[i].Email, email) {
			return &resp.Users[i], nil
		}
	}
	return nil, ErrAccountNotFound
}

// ListAccounts returns all accounts known to the provider, following
// page-based pagination.
func (c *AdminClient) ListAccounts(ctx context.Context) ([]Account, error) {
	var all []Account
	page := 1
	for {
		var resp struct {
			Users []Account `json:"users"`
		}
		path := fmt.Sprintf("/users?page=%d&per_page=200", page)
		if err := c.do(ctx, "list_accounts", http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Users...)
		if len(resp.Users) < 200 {
			return all, nil
		}
		page++
	}
}

// do performs one management API round trip, decoding the response into out
// when out is non-nil.
func (c *AdminClient) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error", start)
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.observe(operation, "not_found", start)
		return ErrAccountNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		c.observe(operation, "conflict", start)
		return ErrAccountExists
	case resp.StatusCode >= 400:
		c.observe(operation, "error", start)
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.observe(operation, "error", start)
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}

	c.observe(operation, "ok", start)
	return nil
}

func (c *AdminClient) observe(operation, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.IdentityCallsTotal.WithLabelValues(operation, status).Inc()
	c.metrics.IdentityCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
