// Package sessionvalidator lets resource servers that share the signing key
// verify jewelauth session tokens without calling back into the service.
package sessionvalidator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Validator.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Clock      Clock
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "session_claims"

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "app_session"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey = errors.New("session.validator.missing_signing_key")
	ErrMissingIssuer     = errors.New("session.validator.missing_issuer")
	ErrMissingToken      = errors.New("session.validator.missing_token")
	ErrInvalidToken      = errors.New("session.validator.invalid_token")
	ErrTokenExpired      = errors.New("session.validator.expired")
	ErrForbidden         = errors.New("session.validator.forbidden")
)

// Validator validates session tokens from a bearer header or cookie.
type Validator struct {
	signingKey []byte
	issuer     string
	cookieName string
	clock      Clock
	parser     *jwt.Parser
}

// Claims is the session payload.
type Claims struct {
	UserID    string   `json:"user_id"`
	UserEmail string   `json:"user_email"`
	UserRoles []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// HasAnyRole reports whether the session carries one of roles, e.g. "ROLE_ADMIN".
func (claims *Claims) HasAnyRole(roles ...string) bool {
	if claims == nil {
		return false
	}
	for _, held := range claims.UserRoles {
		for _, wanted := range roles {
			if held == wanted {
				return true
			}
		}
	}
	return false
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingIssuer)
	}
	cookieName := configuration.CookieName
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	signingKey := make([]byte, len(configuration.SigningKey))
	copy(signingKey, configuration.SigningKey)
	return &Validator{
		signingKey: signingKey,
		issuer:     configuration.Issuer,
		cookieName: cookieName,
		clock:      clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// ValidateToken checks the signature, then the issuer, then expiry. A token
// is expired from the instant its exp claim is reached.
func (validator *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrMissingToken)
	}
	claims := &Claims{}
	parsedToken, parseErr := validator.parser.ParseWithClaims(tokenString, claims, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	})
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if claims.Issuer != validator.issuer || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if !validator.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
	}
	return claims, nil
}

// ValidateRequest reads the bearer header, falling back to the session cookie.
func (validator *Validator) ValidateRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if scheme, token, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		return validator.ValidateToken(strings.TrimSpace(token))
	}
	cookie, cookieErr := request.Cookie(validator.cookieName)
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	return validator.ValidateToken(cookie.Value)
}

// GinMiddleware validates the request and injects claims under contextKey.
// With roles given, sessions holding none of them get 403.
func (validator *Validator) GinMiddleware(contextKey string, roles ...string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := validator.ValidateRequest(contextGin.Request)
		if err != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if len(roles) > 0 && !claims.HasAnyRole(roles...) {
			contextGin.AbortWithStatus(http.StatusForbidden)
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}
