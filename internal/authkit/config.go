package authkit

import (
	"net/http"
	"time"
)

// ServerConfig configures token signing, cookies, and the identity provider.
type ServerConfig struct {
	GoogleWebClientID   string
	GoogleVerifyTimeout time.Duration
	AppJWTSigningKey    []byte
	AppJWTIssuer        string
	CookieDomain        string
	SessionCookieName   string
	SessionTTL          time.Duration
	SameSiteMode        http.SameSite
	AllowInsecureHTTP   bool
}

// DefaultSessionTTL is used when ServerConfig.SessionTTL is not positive.
const DefaultSessionTTL = 24 * time.Hour

// DefaultGoogleVerifyTimeout bounds a single ID token verification.
const DefaultGoogleVerifyTimeout = 5 * time.Second
