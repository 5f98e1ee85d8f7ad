package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/jewelauth/internal/authkit"
)

// ProfileSource loads the stored account behind a session identity.
type ProfileSource interface {
	Profile(ctx context.Context, identity authkit.SessionIdentity) (authkit.User, error)
}

// HandleWhoAmI returns the authenticated user's stored profile. It must run
// behind authkit.RequireSession.
func HandleWhoAmI(logger *zap.Logger, profiles ProfileSource) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		panic("profile source is required")
	}

	return func(contextGin *gin.Context) {
		identity, ok := authkit.IdentityFromContext(contextGin)
		if !ok {
			logger.Warn("missing session identity on context",
				zap.String("code", "api.me.missing_identity"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		user, profileErr := profiles.Profile(contextGin.Request.Context(), identity)
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.me.profile_missing"),
					zap.String("user_id", identity.UserID))
				contextGin.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.me.profile_error"),
				zap.String("user_id", identity.UserID),
				zap.Error(profileErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"firstName":  user.FirstName,
			"lastName":   user.LastName,
			"profession": user.Profession,
			"country":    user.Country,
			"roles":      authkit.RoleDisplayNames(user.Roles),
			"expires":    identity.ExpiresAt,
		})
	}
}
