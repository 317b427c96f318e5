// Package tenant handles loading and providing tenant-specific runtime configuration.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultTenantID is used whenever no tenant can be resolved.
const DefaultTenantID = "default"

// Config is the runtime configuration injected for one tenant's dashboard.
type Config struct {
	TenantID       string `json:"tenantId"`
	BackendURL     string `json:"BACKEND_URL"`
	JWTSecret      string `json:"JWT_SECRET"`
	ViewerTimezone string `json:"VIEWER_TIMEZONE,omitempty"`
}

// Defaults supplies fallbacks for fields missing from a tenant's env.json.
type Defaults struct {
	BackendURL     string
	JWTSecret      string
	ViewerTimezone string
}

// Location resolves the viewer timezone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	switch c.ViewerTimezone {
	case "", "Local":
		return time.Local
	case "UTC":
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ViewerTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ConfigRoot returns the directory holding per-tenant configuration.
func ConfigRoot(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find user home directory: %w", err)
	}
	return filepath.Join(homeDir, "t8k-go-server", "config"), nil
}

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
// A missing file is not an error; the defaults are used instead.
func LoadTenantConfig(root, tenantID string, defaults Defaults) (*Config, error) {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	if strings.ContainsAny(tenantID, `/\.`) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}

	cfg := &Config{}
	configPath := filepath.Join(root, tenantID, "env.json")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse tenant config json: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	cfg.TenantID = tenantID
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaults.BackendURL
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaults.JWTSecret
	}
	if cfg.ViewerTimezone == "" {
		cfg.ViewerTimezone = defaults.ViewerTimezone
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("tenant %s has no backend URL configured", tenantID)
	}

	return cfg, nil
}
