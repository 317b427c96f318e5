// Package tenant manages tenant-specific configurations, isolating
// multi-tenancy logic from the rest of the application.
package tenant

import (
	"fmt"
	"sync"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// Manager coordinates tenant detection and configuration loading
type Manager struct {
	detector *Detector
	root     string
	defaults Defaults
	configs  map[string]*Config
	mu       sync.RWMutex
	logger   *logging.ChanneledLogger
}

// NewManager creates and initializes a new tenant manager.
func NewManager(detector *Detector, root string, defaults Defaults, logger *logging.ChanneledLogger) *Manager {
	return &Manager{
		detector: detector,
		root:     root,
		defaults: defaults,
		configs:  make(map[string]*Config),
		logger:   logger,
	}
}

// Resolve returns the tenant id and configuration for the request
func (m *Manager) Resolve(c *gin.Context) (*Config, error) {
	return m.GetConfig(m.detector.DetectTenant(c))
}

// GetConfig loads (once) and returns a tenant's configuration.
func (m *Manager) GetConfig(tenantID string) (*Config, error) {
	m.mu.RLock()
	cfg, ok := m.configs[tenantID]
	m.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.configs[tenantID]; ok {
		return cfg, nil
	}

	cfg, err := LoadTenantConfig(m.root, tenantID, m.defaults)
	if err != nil {
		m.logger.Tenant().Error("Failed to load tenant config", "tenantId", tenantID, "error", err)
		return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	m.configs[tenantID] = cfg
	m.logger.Tenant().Info("Tenant config loaded", "tenantId", tenantID, "backendUrl", cfg.BackendURL, "timezone", cfg.ViewerTimezone)
	return cfg, nil
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *logging.ChanneledLogger {
	return m.logger
}
