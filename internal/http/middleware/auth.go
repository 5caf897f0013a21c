package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type AuthMiddleware struct {
	log      *logger.Logger
	identity services.IdentityResolver
}

func NewAuthMiddleware(log *logger.Logger, identity services.IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), identity: identity}
}

// RequireAuth resolves the caller from a bearer header or, for EventSource
// clients that cannot set headers, the token query parameter.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			c.Abort()
			return
		}
		ctx, err := am.identity.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			am.log.Debug("Token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ctxutil.GetIdentity(c.Request.Context())
		if id == nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			c.Abort()
			return
		}
		for _, r := range roles {
			if strings.EqualFold(id.Role, r) {
				c.Next()
				return
			}
		}
		response.RespondError(c, http.StatusForbidden, "forbidden", errForbidden)
		c.Abort()
	}
}

func extractTokenFromAll(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingToken authError = "missing or invalid token"
	errForbidden    authError = "forbidden"
)
