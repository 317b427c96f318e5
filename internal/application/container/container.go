// Package container provides dependency injection for all singleton services
package container

import (
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/application/services"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/storykeep-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Dashboard sessions
	Dashboards *services.DashboardManager

	// Infrastructure Dependencies
	TenantManager *tenant.Manager
	ContentMaps   *stores.ContentMapStore
	Hub           *messaging.DashboardHub
	Cleanup       *cleanup.Worker

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer(tenantManager *tenant.Manager, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *Container {
	return NewContainerWithFactory(tenantManager, BackendFactory(logger), services.NewRealClock(), logger, perfTracker)
}

// NewContainerWithFactory wires the container around a custom backend factory and clock.
func NewContainerWithFactory(tenantManager *tenant.Manager, factory services.BackendFactory, clock services.Clock, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *Container {
	contentMaps := stores.NewContentMapStore()
	hub := messaging.NewDashboardHub(logger)
	dashboards := services.NewDashboardManager(factory, clock, DashboardConfig(contentMaps), hub, logger, perfTracker)

	return &Container{
		Dashboards:    dashboards,
		TenantManager: tenantManager,
		ContentMaps:   contentMaps,
		Hub:           hub,
		Cleanup:       cleanup.NewWorker(dashboards, contentMaps, cleanup.NewConfig(), logger),
		Logger:        logger,
		PerfTracker:   perfTracker,
	}
}

// DashboardConfig builds dashboard settings from pkg/config.
func DashboardConfig(contentMaps *stores.ContentMapStore) services.DashboardConfig {
	cfg := services.DefaultDashboardConfig()
	cfg.Fetch = services.FetchConfig{
		CacheTTL:        config.AnalyticsCacheTTL,
		Debounce:        config.FetchDebounce,
		PollInterval:    config.PollInterval,
		MaxPollAttempts: config.MaxPollAttempts,
		FloodWindow:     config.FloodWindow,
		FloodThreshold:  config.FloodThreshold,
		FloodCooldown:   config.FloodCooldown,
		DefaultWindow:   time.Duration(config.DefaultWindowHours) * time.Hour,
	}
	cfg.RetryDelays = config.DashboardRetryDelay
	cfg.SuccessHold = config.ApplySuccessHold
	cfg.MaxHours = config.MaxAnalyticsHours
	cfg.ContentMapTTL = config.ContentMapTTL
	cfg.ContentMapStore = contentMaps
	return cfg
}

// BackendFactory builds a circuit-broken backend client per tenant.
func BackendFactory(logger *logging.ChanneledLogger) services.BackendFactory {
	return func(cfg *tenant.Config) (services.Backend, error) {
		if cfg.JWTSecret == "" {
			return nil, security.ErrMissingSecret
		}
		tokens := security.NewAdminTokenSource(cfg.TenantID, cfg.JWTSecret)
		return backend.NewClient(cfg, config.BackendTimeout, tokens, logger), nil
	}
}
