package authkit

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	messageInvalidCredentials = "Invalid credentials. Please check your email and password."
	messageEmailTaken         = "Email is already in use!"
	messageInvalidGoogleToken = "Invalid Google ID token."
	messageProviderDown       = "Identity provider is unavailable. Please retry."
	messageInternal           = "Internal server error."
	messageUnauthenticated    = "Unauthenticated."
	messageForbidden          = "Unauthorized access"
	messageHTTPSRequired      = "HTTPS is required."
)

// MountAuthRoutes registers /api/auth/login, /api/auth/register,
// /api/auth/google-login, and /api/auth/logout.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, service *Service, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	authGroup := router.Group("/api/auth")

	authGroup.POST("/login", func(contextGin *gin.Context) {
		var inbound LoginRequest
		if !bindJSON(contextGin, &inbound) {
			return
		}
		response, err := service.Login(contextGin.Request.Context(), inbound)
		if err != nil {
			writeAuthError(contextGin, logger, "auth.login", err)
			return
		}
		writeAuthResponse(contextGin, configuration, response)
	})

	authGroup.POST("/register", func(contextGin *gin.Context) {
		var inbound RegisterRequest
		if !bindJSON(contextGin, &inbound) {
			return
		}
		response, err := service.Register(contextGin.Request.Context(), inbound)
		if err != nil {
			writeAuthError(contextGin, logger, "auth.register", err)
			return
		}
		writeAuthResponse(contextGin, configuration, response)
	})

	authGroup.POST("/google-login", func(contextGin *gin.Context) {
		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": messageHTTPSRequired})
			return
		}
		var inbound GoogleLoginRequest
		if !bindJSON(contextGin, &inbound) {
			return
		}
		response, err := service.GoogleLogin(contextGin.Request.Context(), inbound)
		if err != nil {
			writeAuthError(contextGin, logger, "auth.google", err)
			return
		}
		writeAuthResponse(contextGin, configuration, response)
	})

	authGroup.POST("/logout", RequireSession(service, configuration), func(contextGin *gin.Context) {
		identity, _ := IdentityFromContext(contextGin)
		if err := service.Logout(contextGin.Request.Context(), identity); err != nil {
			logger.Error("logout failed",
				zap.String("code", "auth.logout.error"),
				zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": messageInternal})
			return
		}
		clearCookie(contextGin, configuration.SessionCookieName, configuration.CookieDomain, configuration.SameSiteMode)
		contextGin.Status(http.StatusNoContent)
	})
}

func bindJSON(contextGin *gin.Context, target any) bool {
	if err := contextGin.ShouldBindJSON(target); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"request": "malformed JSON body"})
		return false
	}
	return true
}

func writeAuthResponse(contextGin *gin.Context, configuration ServerConfig, response AuthResponse) {
	if configuration.SessionCookieName != "" {
		writeSessionCookie(contextGin, configuration, response.Token, response.ExpiresAt)
	}
	contextGin.JSON(http.StatusOK, response)
}

// writeAuthError maps error kinds to transport responses without leaking internals.
func writeAuthError(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, validationErr.Fields)
	case errors.Is(err, ErrInvalidCredentials):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": messageInvalidCredentials})
	case errors.Is(err, ErrEmailTaken):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": messageEmailTaken})
	case errors.Is(err, ErrIdentityTokenInvalid):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": messageInvalidGoogleToken})
	case errors.Is(err, ErrIdentityProviderUnavailable):
		logger.Warn("identity provider unavailable",
			zap.String("code", code+".provider_unavailable"),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": messageProviderDown})
	case errors.Is(err, ErrRoleNotConfigured):
		logger.Error("role table is missing a required role",
			zap.String("code", code+".role_not_configured"),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": messageInternal})
	default:
		logger.Error("authentication flow failed",
			zap.String("code", code+".internal"),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": messageInternal})
	}
}

func writeSessionCookie(contextGin *gin.Context, configuration ServerConfig, sessionToken string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  expiresAt,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearCookie(contextGin *gin.Context, name string, domain string, sameSite http.SameSite) {
	if name == "" {
		return
	}
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: sameSite,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
