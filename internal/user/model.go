package user

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// MaxNameLength is the longest name, in characters, a user can carry.
const MaxNameLength = 128

// parseRole reads a stored role. Unknown values get the least privilege.
func parseRole(s string) Role {
	if r := Role(s); r.Valid() {
		return r
	}
	return RoleUser
}

// Provider names an external identity provider.
type Provider string

const (
	ProviderFacebook Provider = "facebook"
	ProviderGoogle   Provider = "google"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderFacebook || p == ProviderGoogle
}

// ProviderLinks maps a provider to the external account id.
type ProviderLinks map[Provider]string

type User struct {
	ID           uuid.UUID     `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"` // Never expose password hash in JSON
	Name         string        `json:"name,omitempty"`
	Role         Role          `json:"role"`
	Providers    ProviderLinks `json:"-"`
	Picture      string        `json:"picture,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Filter narrows a user listing. Nil fields are ignored.
type Filter struct {
	Name  *string
	Email *string
	Role  *Role
}

// Page is an offset pagination window.
type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultPageLimit = 30
	MaxPageLimit     = 100
)

// Normalize applies the default and maximum limit.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// OAuthIdentity is an external account resolved by an identity provider.
type OAuthIdentity struct {
	Provider   Provider
	ExternalID string
	Email      string
	Name       string
	Picture    string
}

// View is the public representation of a user.
type View struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	Picture   string    `json:"picture,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// View returns the fields of u that are safe to expose.
func (u *User) View() View {
	return View{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Picture:   u.Picture,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// truncateName cuts name to MaxNameLength characters.
func truncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	return string([]rune(name)[:MaxNameLength])
}
