package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/security"
)

// AdminAuthMiddleware requires an admin token signed with the tenant's JWT secret,
// from the Authorization header or the admin_auth cookie.
func AdminAuthMiddleware(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, ok := GetTenantConfig(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
			return
		}
		if cfg.JWTSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": security.ErrMissingSecret.Error()})
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token, _ = c.Cookie("admin_auth")
		}

		if token == "" || !isAdmin(token, cfg.JWTSecret, cfg.TenantID) {
			logger.Tenant().Warn("Unauthorized access attempt", "tenantId", cfg.TenantID, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

func isAdmin(token, secret, tenantID string) bool {
	claims, err := security.ValidateJWT(token, secret)
	if err != nil {
		return false
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return false
	}
	// Tokens minted for another tenant are rejected even when secrets are shared
	if tid, ok := claims["tenantId"].(string); ok && tid != "" && tid != tenantID {
		return false
	}
	return true
}
