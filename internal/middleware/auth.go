package middleware

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/metrics"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by Authenticate
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

const accessTokenCookie = "access_token"

// PermissionResolver returns the effective permissions of a user
type PermissionResolver interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// Authorizer validates access tokens and checks permissions against the resolver
type Authorizer struct {
	secret        []byte
	resolver      PermissionResolver
	log           *zap.Logger
	metrics       *metrics.AuthzMetrics
	secureCookies bool
}

func NewAuthorizer(secret []byte, resolver PermissionResolver, log *zap.Logger, m *metrics.AuthzMetrics, secureCookies bool) *Authorizer {
	return &Authorizer{secret: secret, resolver: resolver, log: log, metrics: m, secureCookies: secureCookies}
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Authorizer) SetTokenCookie(c *gin.Context, token string, maxAge int) {
	// cross-origin deployments need SameSite=None, which browsers only accept with Secure
	sameSite := http.SameSiteLaxMode
	if a.secureCookies {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, token, maxAge, "/", "", a.secureCookies, true)
}

// ClearTokenCookie removes the access token cookie
func (a *Authorizer) ClearTokenCookie(c *gin.Context) {
	a.SetTokenCookie(c, "", -1)
}

// Authenticate validates the JWT from the cookie or the Authorization header
func (a *Authorizer) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.authenticate(c) {
			c.Next()
		}
	}
}

// RequirePermission authenticates the caller and checks every required
// permission against the caller's effective permission set
func (a *Authorizer) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, done := c.Get(ContextUserID); !done && !a.authenticate(c) {
			return
		}

		userID := UserID(c)
		userPerms, err := a.resolver.GetUserPermissions(c.Request.Context(), userID)
		if err != nil {
			a.log.Error("failed to resolve permissions", zap.String("user_id", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}

		for _, required := range requiredPerms {
			if !permSet[required] {
				a.count(required, "deny")
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
			a.count(required, "allow")
		}

		c.Next()
	}
}

func (a *Authorizer) count(permission, decision string) {
	if a.metrics != nil {
		a.metrics.ChecksTotal.WithLabelValues(permission, decision).Inc()
	}
}

// authenticate aborts the request and returns false when no valid token is present
func (a *Authorizer) authenticate(c *gin.Context) bool {
	// Try cookie first, fallback to Authorization header
	tokenString, cookieErr := c.Cookie(accessTokenCookie)
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return false
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return false
		}
		tokenString = parts[1]
	}

	claims, err := auth.Parse(a.secret, tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return false
	}

	c.Set(ContextUserID, claims.UserID())
	c.Set(ContextUserRole, claims.Role)
	return true
}

// UserID returns the authenticated user's id, empty when unauthenticated
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
