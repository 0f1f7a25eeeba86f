package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redmonkez12/todo-api/internal/oauth"
	"github.com/redmonkez12/todo-api/internal/user"
)

// Linker logs users in with an external identity provider, linking the
// provider account to a local user or creating one.
type Linker struct {
	users     *user.Service
	providers map[user.Provider]ProfileFetcher
}

func NewLinker(users *user.Service, providers map[user.Provider]ProfileFetcher) *Linker {
	return &Linker{users: users, providers: providers}
}

// Login finds the user linked to identity or sharing its email and links
// the provider account, or creates a new user. Repeated or concurrent
// calls for the same identity resolve to the same user.
func (l *Linker) Login(ctx context.Context, identity user.OAuthIdentity) (*user.User, error) {
	if !identity.Provider.Valid() {
		return nil, ErrUnknownProvider
	}
	identity.Email = user.NormalizeEmail(identity.Email)
	if identity.ExternalID == "" || identity.Email == "" {
		return nil, ErrOAuthProfile
	}

	return l.users.LinkOAuth(ctx, identity)
}

// LoginWithToken resolves accessToken to a profile with the provider and
// then calls Login.
func (l *Linker) LoginWithToken(ctx context.Context, provider user.Provider, accessToken string) (*user.User, error) {
	fetcher, ok := l.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	profile, err := fetcher.Profile(ctx, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrInvalidAccessToken):
			return nil, ErrOAuthRejected
		case errors.Is(err, oauth.ErrIncompleteProfile):
			return nil, ErrOAuthProfile
		}
		return nil, fmt.Errorf("failed to fetch %s profile: %w", provider, err)
	}

	return l.Login(ctx, user.OAuthIdentity{
		Provider:   provider,
		ExternalID: profile.ID,
		Email:      profile.Email,
		Name:       profile.Name,
		Picture:    profile.Picture,
	})
}
