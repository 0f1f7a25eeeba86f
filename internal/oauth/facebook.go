package oauth

import (
	"context"
	"net/url"
	"time"
)

const facebookFields = "id,name,email,picture"

// Facebook fetches profiles from the Graph API.
type Facebook struct {
	client
}

func NewFacebook(profileURL string, timeout time.Duration, opts ...Option) *Facebook {
	return &Facebook{client: newClient(profileURL, timeout, opts)}
}

type facebookProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *Facebook) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	u, err := url.Parse(f.profileURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fields", facebookFields)
	u.RawQuery = q.Encode()

	var p facebookProfile
	if err := f.fetch(ctx, accessToken, u.String(), &p); err != nil {
		return nil, err
	}
	if p.ID == "" || p.Email == "" {
		return nil, ErrIncompleteProfile
	}

	return &Profile{
		ID:      p.ID,
		Email:   p.Email,
		Name:    p.Name,
		Picture: p.Picture.Data.URL,
	}, nil
}
