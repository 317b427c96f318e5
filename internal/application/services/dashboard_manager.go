package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
)

// BackendFactory builds the backend client for a tenant.
type BackendFactory func(cfg *tenant.Config) (Backend, error)

// DashboardManager owns one dashboard session per tenant.
type DashboardManager struct {
	factory   BackendFactory
	clock     Clock
	cfg       DashboardConfig
	publisher Publisher
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker

	mu         sync.Mutex
	dashboards map[string]*Dashboard
}

// NewDashboardManager creates a manager. The content map store in cfg is shared by all sessions.
func NewDashboardManager(factory BackendFactory, clock Clock, cfg DashboardConfig, publisher Publisher, logger *logging.ChanneledLogger, perf *performance.Tracker) *DashboardManager {
	if clock == nil {
		clock = NewRealClock()
	}
	return &DashboardManager{
		factory:    factory,
		clock:      clock,
		cfg:        cfg,
		publisher:  publisher,
		logger:     logger,
		perf:       perf,
		dashboards: make(map[string]*Dashboard),
	}
}

// Get returns the tenant's dashboard, creating it on first use.
func (m *DashboardManager) Get(cfg *tenant.Config) (*Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.dashboards[cfg.TenantID]; ok {
		return d, nil
	}

	backend, err := m.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend for tenant %s: %w", cfg.TenantID, err)
	}

	dcfg := m.cfg
	dcfg.Location = cfg.Location()
	d := NewDashboard(cfg.TenantID, backend, m.clock, dcfg, m.publisher, m.logger, m.perf)
	m.dashboards[cfg.TenantID] = d
	metrics.ActiveDashboards.Set(float64(len(m.dashboards)))
	m.logger.Analytics().Info("Dashboard session opened", "tenantId", cfg.TenantID, "timezone", dcfg.Location.String())
	return d, nil
}

// Lookup returns an existing dashboard without creating one.
func (m *DashboardManager) Lookup(tenantID string) (*Dashboard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dashboards[tenantID]
	return d, ok
}

// Close ends the tenant's session. It reports whether one existed.
func (m *DashboardManager) Close(tenantID string) bool {
	m.mu.Lock()
	d, ok := m.dashboards[tenantID]
	delete(m.dashboards, tenantID)
	metrics.ActiveDashboards.Set(float64(len(m.dashboards)))
	m.mu.Unlock()

	if ok {
		d.Close()
	}
	return ok
}

// ReapIdle closes sessions unused for longer than maxIdle and returns their tenant ids.
func (m *DashboardManager) ReapIdle(maxIdle time.Duration) []string {
	now := m.clock.Now()

	m.mu.Lock()
	var idle []*Dashboard
	for id, d := range m.dashboards {
		if now.Sub(d.LastSeen()) > maxIdle {
			idle = append(idle, d)
			delete(m.dashboards, id)
		}
	}
	metrics.ActiveDashboards.Set(float64(len(m.dashboards)))
	m.mu.Unlock()

	reaped := make([]string, 0, len(idle))
	for _, d := range idle {
		d.Close()
		reaped = append(reaped, d.TenantID())
	}
	return reaped
}

// Len returns the number of open sessions.
func (m *DashboardManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dashboards)
}

// CloseAll ends every session.
func (m *DashboardManager) CloseAll() {
	m.mu.Lock()
	all := m.dashboards
	m.dashboards = make(map[string]*Dashboard)
	metrics.ActiveDashboards.Set(0)
	m.mu.Unlock()

	for _, d := range all {
		d.Close()
	}
}
