package cleanup

import (
	"time"

	"github.com/AtRiskMedia/storykeep-go/pkg/config"
)

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval  time.Duration
	VerboseReporting bool
	DashboardIdleTTL time.Duration
	ContentMapMaxAge time.Duration
}

// NewConfig creates a cleanup configuration from the already-initialized
// variables in pkg/config.
func NewConfig() *Config {
	return &Config{
		CleanupInterval:  config.CleanupInterval,
		VerboseReporting: config.CleanupVerbose,
		DashboardIdleTTL: config.DashboardIdleTTL,
		ContentMapMaxAge: config.ContentMapMaxAge,
	}
}
