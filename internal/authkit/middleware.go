package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyIdentity is where RequireSession stores the SessionIdentity.
const ContextKeyIdentity = "auth_identity"

const bearerPrefix = "bearer "

// RequireSession validates the bearer token or session cookie and injects the identity.
func RequireSession(service *Service, configuration ServerConfig) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token := extractSessionToken(contextGin.Request, configuration.SessionCookieName)
		if token == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageUnauthenticated})
			return
		}
		identity, err := service.Authenticate(contextGin.Request.Context(), token)
		if err != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageUnauthenticated})
			return
		}
		contextGin.Set(ContextKeyIdentity, identity)
		contextGin.Next()
	}
}

// RequireRoles admits requests whose identity holds at least one of roles.
// It must run after RequireSession.
func RequireRoles(roles ...RoleID) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		identity, ok := IdentityFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageUnauthenticated})
			return
		}
		if !identity.HasAnyRole(roles...) {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": messageForbidden})
			return
		}
		contextGin.Next()
	}
}

// IdentityFromContext returns the identity stored by RequireSession.
func IdentityFromContext(contextGin *gin.Context) (SessionIdentity, bool) {
	value, found := contextGin.Get(ContextKeyIdentity)
	if !found {
		return SessionIdentity{}, false
	}
	identity, ok := value.(SessionIdentity)
	return identity, ok
}

func extractSessionToken(request *http.Request, cookieName string) string {
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if cookieName == "" {
		return ""
	}
	sessionCookie, cookieErr := request.Cookie(cookieName)
	if cookieErr != nil || sessionCookie == nil {
		return ""
	}
	return strings.TrimSpace(sessionCookie.Value)
}
