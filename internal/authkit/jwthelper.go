package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errEmptySigningKey = errors.New("jwt.config: signing key must be non-empty")
	errEmptyIssuer     = errors.New("jwt.config: issuer must be non-empty")
	errEmptySubject    = errors.New("jwt.mint.failure: subject must be non-empty")
)

// JwtCustomClaims are embedded in the session token.
type JwtCustomClaims struct {
	UserID    string   `json:"user_id"`
	UserEmail string   `json:"user_email"`
	UserRoles []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens.
// The signing key is copied at construction and never changes afterwards.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	parser     *jwt.Parser
}

// NewTokenService validates the signing configuration.
func NewTokenService(signingKey []byte, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, errEmptySigningKey
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errEmptyIssuer
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	keyCopy := make([]byte, len(signingKey))
	copy(keyCopy, signingKey)
	return &TokenService{
		signingKey: keyCopy,
		issuer:     issuer,
		ttl:        ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL reports the lifetime of issued tokens.
func (service *TokenService) TTL() time.Duration {
	return service.ttl
}

// Issue mints a token for the subject email. Issued-at is truncated to whole
// seconds because NumericDate claims carry second precision.
func (service *TokenService) Issue(subjectEmail string, userID string, roles []RoleID, issuedAt time.Time) (string, time.Time, error) {
	if strings.TrimSpace(subjectEmail) == "" {
		return "", time.Time{}, errEmptySubject
	}
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(service.ttl)
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, string(role))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JwtCustomClaims{
		UserID:    userID,
		UserEmail: subjectEmail,
		UserRoles: roleNames,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    service.issuer,
			Subject:   subjectEmail,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks the signature first and expiry second; a token is expired
// once now reaches its exp claim.
func (service *TokenService) Validate(tokenString string, now time.Time) (SessionIdentity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return SessionIdentity{}, fmt.Errorf("jwt.validate: %w", ErrTokenInvalid)
	}
	claims := &JwtCustomClaims{}
	parsedToken, parseErr := service.parser.ParseWithClaims(tokenString, claims, func(parsed *jwt.Token) (interface{}, error) {
		return service.signingKey, nil
	})
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return SessionIdentity{}, fmt.Errorf("jwt.validate: %w", ErrTokenInvalid)
	}
	if claims.Issuer != service.issuer || claims.Subject == "" || claims.ExpiresAt == nil {
		return SessionIdentity{}, fmt.Errorf("jwt.validate: %w", ErrTokenInvalid)
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return SessionIdentity{}, fmt.Errorf("jwt.validate: %w", ErrTokenExpired)
	}
	roles := make([]RoleID, 0, len(claims.UserRoles))
	for _, roleName := range claims.UserRoles {
		roles = append(roles, RoleID(roleName))
	}
	return SessionIdentity{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		Email:     claims.Subject,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
