package authkit

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password alike.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrEmailTaken indicates a registration for an email that already has an account.
	ErrEmailTaken = errors.New("auth.email_taken")
	// ErrRoleNotConfigured indicates a resolved role is missing from the role store.
	ErrRoleNotConfigured = errors.New("auth.role_not_configured")
	// ErrIdentityTokenInvalid covers every failed check on a provider ID token.
	ErrIdentityTokenInvalid = errors.New("auth.identity_token_invalid")
	// ErrIdentityProviderUnavailable indicates the provider key service could not be reached.
	ErrIdentityProviderUnavailable = errors.New("auth.identity_provider_unavailable")
	// ErrTokenInvalid indicates a malformed, forged, or foreign session token.
	ErrTokenInvalid = errors.New("auth.token_invalid")
	// ErrTokenExpired indicates a correctly signed session token past its expiry.
	ErrTokenExpired = errors.New("auth.token_expired")
	// ErrTokenRevoked indicates a session token present on the deny-list.
	ErrTokenRevoked = errors.New("auth.token_revoked")

	// ErrUserNotFound is returned by user stores when no record matches.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrUserExists is returned by user stores when the email is already taken.
	ErrUserExists = errors.New("user_store.exists")
	// ErrRoleNotFound is returned by role stores when no role has the requested name.
	ErrRoleNotFound = errors.New("role_store.not_found")
)

// ValidationError reports request fields that failed validation, keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (validationErr *ValidationError) Error() string {
	if validationErr == nil || len(validationErr.Fields) == 0 {
		return "auth.validation"
	}
	names := make([]string, 0, len(validationErr.Fields))
	for name := range validationErr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "auth.validation: " + strings.Join(names, ",")
}
