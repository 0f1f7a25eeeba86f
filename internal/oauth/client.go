// Package oauth resolves identity-provider access tokens to user profiles.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrInvalidAccessToken is returned when the provider rejects the token.
	ErrInvalidAccessToken = errors.New("oauth: access token rejected by provider")
	// ErrIncompleteProfile is returned when the profile lacks an id or email.
	ErrIncompleteProfile = errors.New("oauth: profile has no id or email")
)

// maxProfileBytes bounds the provider response body.
const maxProfileBytes = 1 << 20

// Profile is the subset of a provider profile used for account linking.
type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// client fetches a JSON profile document with the access token attached
// as a bearer credential.
type client struct {
	profileURL string
	timeout    time.Duration
	httpClient *http.Client
}

func newClient(profileURL string, timeout time.Duration, opts []Option) client {
	c := client{profileURL: profileURL, timeout: timeout}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures a provider client.
type Option func(*client)

// WithHTTPClient sets the transport client used underneath the oauth2
// token source.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

func (c client) fetch(ctx context.Context, accessToken, rawURL string, dst any) error {
	if accessToken == "" {
		return ErrInvalidAccessToken
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("oauth: build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("oauth: profile request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidAccessToken
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("oauth: profile request returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(dst); err != nil {
		return fmt.Errorf("oauth: decode profile: %w", err)
	}
	return nil
}
