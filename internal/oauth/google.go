package oauth

import (
	"context"
	"time"
)

// Google fetches profiles from the OpenID Connect userinfo endpoint.
type Google struct {
	client
}

func NewGoogle(profileURL string, timeout time.Duration, opts ...Option) *Google {
	return &Google{client: newClient(profileURL, timeout, opts)}
}

type googleProfile struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (g *Google) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	var p googleProfile
	if err := g.fetch(ctx, accessToken, g.profileURL, &p); err != nil {
		return nil, err
	}
	if p.Sub == "" || p.Email == "" {
		return nil, ErrIncompleteProfile
	}

	return &Profile{
		ID:      p.Sub,
		Email:   p.Email,
		Name:    p.Name,
		Picture: p.Picture,
	}, nil
}
