package tenant

import (
	"github.com/gin-gonic/gin"
)

// Detector resolves the tenant for an incoming console request.
type Detector struct {
	defaultTenant string
	multiTenant   bool
}

// NewDetector creates a detector. In single-tenant mode every request maps to defaultTenant.
func NewDetector(defaultTenant string, multiTenant bool) *Detector {
	if defaultTenant == "" {
		defaultTenant = DefaultTenantID
	}
	return &Detector{defaultTenant: defaultTenant, multiTenant: multiTenant}
}

// DetectTenant extracts the tenant id from the request.
func (d *Detector) DetectTenant(c *gin.Context) string {
	if !d.multiTenant {
		return d.defaultTenant
	}

	tenantID := c.GetHeader("X-Tenant-ID")
	// Browsers cannot set headers on websocket upgrades
	if tenantID == "" {
		tenantID = c.Query("tenantId")
	}
	if tenantID == "" {
		tenantID = d.defaultTenant
	}
	return tenantID
}
