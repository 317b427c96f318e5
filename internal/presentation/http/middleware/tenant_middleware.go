// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
)

const tenantConfigKey = "tenantConfig"

// TenantMiddleware resolves the request's tenant configuration.
func TenantMiddleware(tenantManager *tenant.Manager, perfTracker *performance.Tracker) gin.HandlerFunc {
	logger := tenantManager.Logger()

	return func(c *gin.Context) {
		start := time.Now()
		marker := perfTracker.StartOperation("middleware_tenant_resolution", "unknown")
		defer marker.Complete()
		marker.AddMetadata("path", c.Request.URL.Path)

		cfg, err := tenantManager.Resolve(c)
		if err != nil {
			logger.Tenant().Warn("Tenant configuration unavailable", "error", err, "path", c.Request.URL.Path)
			marker.SetError(err)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}

		marker.TenantID = cfg.TenantID
		marker.SetSuccess(true)
		logger.Tenant().Debug("Tenant resolved", "tenantId", cfg.TenantID, "duration", time.Since(start))

		c.Set(tenantConfigKey, cfg)
		c.Next()
	}
}

// GetTenantConfig retrieves the tenant configuration from the gin context.
func GetTenantConfig(c *gin.Context) (*tenant.Config, bool) {
	v, exists := c.Get(tenantConfigKey)
	if !exists {
		return nil, false
	}
	cfg, ok := v.(*tenant.Config)
	return cfg, ok
}
