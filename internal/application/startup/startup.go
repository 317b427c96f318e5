// Package startup prepares the application server
package startup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/application/container"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/supervisor"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/storykeep-go/pkg/config"
)

// Initialize performs the startup sequence and blocks until shutdown
func Initialize() error {
	setupGin()

	start := time.Now().UTC()

	log.Println("\033[32m" + `
  storykeep analytics console
` + "\033[97m" + `
  made by At Risk Media
` + "\033[0m")

	// Step 1: Logging
	logger, err := logging.NewChanneledLogger(loggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	logger.LogStartupPhase("logging", time.Since(start), true)

	// Step 2: Tenant configuration
	phase := time.Now()
	root, err := tenant.ConfigRoot(config.ConfigRoot)
	if err != nil {
		logger.LogStartupPhase("tenant_config", time.Since(phase), false)
		return fmt.Errorf("failed to resolve tenant config root: %w", err)
	}
	tenantManager := tenant.NewManager(
		tenant.NewDetector(config.DefaultTenantID, config.MultiTenant),
		root,
		tenant.Defaults{
			BackendURL:     config.BackendURL,
			JWTSecret:      config.JWTSecret,
			ViewerTimezone: config.ViewerTimezone,
		},
		logger,
	)
	if _, err := tenantManager.GetConfig(config.DefaultTenantID); err != nil {
		logger.LogStartupPhase("tenant_config", time.Since(phase), false)
		return fmt.Errorf("failed to load default tenant: %w", err)
	}
	logger.LogStartupPhase("tenant_config", time.Since(phase), true)

	// Step 3: Services
	phase = time.Now()
	perfTracker := performance.NewTracker()
	c := container.NewContainer(tenantManager, logger, perfTracker)
	srv := server.New(config.Port, c)
	logger.LogStartupPhase("container", time.Since(phase), true)

	// Step 4: Supervision
	tree := supervisor.NewTree(logger.System(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(c.Hub)
	tree.AddMaintenanceService(c.Cleanup)
	tree.AddAPIService(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Startup().Info("StoryKeep console ready",
		"port", config.Port,
		"backendUrl", config.BackendURL,
		"tenantId", config.DefaultTenantID,
		"multiTenant", config.MultiTenant,
		"duration", time.Since(start),
	)

	err = tree.Serve(ctx)

	logger.Shutdown().Info("Shutting down dashboards", "active", c.Dashboards.Len())
	c.Dashboards.CloseAll()
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logger.Shutdown().Warn("Services did not stop in time", "count", len(report))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	return nil
}

func setupGin() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogJSONFormat
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.DefaultLevel = logging.ParseLevel(config.LogLevel)
	return cfg
}
