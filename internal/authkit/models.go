package authkit

import (
	"sort"
	"strings"
	"time"
)

// RoleID is the canonical identifier of a role stored in the role table.
type RoleID string

const (
	// RoleUser is granted to every account by default.
	RoleUser RoleID = "ROLE_USER"
	// RoleAdmin is granted only when requested at registration.
	RoleAdmin RoleID = "ROLE_ADMIN"
)

const roleDisplayPrefix = "ROLE_"

// KnownRoles lists the closed set of roles seeded at startup.
var KnownRoles = []RoleID{RoleUser, RoleAdmin}

// DisplayName strips the internal prefix, e.g. ROLE_USER becomes USER.
func (role RoleID) DisplayName() string {
	return strings.TrimPrefix(string(role), roleDisplayPrefix)
}

// RoleDisplayNames converts role ids into sorted display names.
func RoleDisplayNames(roles []RoleID) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.DisplayName())
	}
	sort.Strings(names)
	return names
}

// Role is a row of the role table.
type Role struct {
	ID   int64
	Name RoleID
}

// User is an application account with its fully materialized role set.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Profession   string
	Country      string
	Roles        []RoleID
}

// HasRole reports whether the user holds the given role.
func (user User) HasRole(role RoleID) bool {
	for _, held := range user.Roles {
		if held == role {
			return true
		}
	}
	return false
}

// ExternalIdentityClaims are the verified attributes of a provider ID token.
// They live only for the duration of a single sign-in.
type ExternalIdentityClaims struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Issuer     string
	Audience   string
	Expiry     time.Time
}

// SessionIdentity is the verified content of a session token.
type SessionIdentity struct {
	TokenID   string
	UserID    string
	Email     string
	Roles     []RoleID
	ExpiresAt time.Time
}

// HasAnyRole reports whether the identity holds at least one of the given roles.
func (identity SessionIdentity) HasAnyRole(roles ...RoleID) bool {
	for _, wanted := range roles {
		for _, held := range identity.Roles {
			if held == wanted {
				return true
			}
		}
	}
	return false
}

// AuthResponse is returned by every successful sign-in flow.
type AuthResponse struct {
	Token      string    `json:"token"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Profession string    `json:"profession"`
	Country    string    `json:"country"`
	Roles      []string  `json:"roles"`
	ExpiresAt  time.Time `json:"-"`
}
