package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/respond"
)

// ContextKeyUserID is the gin context key holding the caller's internal id
const ContextKeyUserID = "user_id"

// AuthMiddleware rejects requests without a valid bearer JWT and records the
// caller in the gin context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respond.Abort(c, err)
			return
		}

		claims, err := ValidateToken(raw)
		switch {
		case errors.Is(err, ErrExpiredToken):
			respond.Abort(c, apperr.Unauthenticated("Token has expired"))
			return
		case err != nil:
			respond.Abort(c, apperr.Unauthenticated("Invalid token"))
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthenticated("Authorization header required")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", apperr.Unauthenticated("Invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// GetUserID returns the authenticated user's internal id
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
